package reconcile

import "strings"

var (
	defaultSuccessStatuses = []string{"completed", "complete", "success", "succeeded", "done"}
	defaultFailureStatuses = []string{"error", "failed", "failure", "cancelled", "canceled", "terminated"}
)

type sentinels map[string]struct{}

func newSentinels(values []string) sentinels {
	s := make(sentinels, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

func (s sentinels) matches(status string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(status))]
	return ok
}
