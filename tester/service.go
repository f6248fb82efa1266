package tester

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/project-flogo/core/data/coerce"
	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/core/support/service"
	services "github.com/project-flogo/flowwatch/service"
	"github.com/project-flogo/flowwatch/support"
)

const (
	DefaultPort = 8000

	SettingPort   = "port"
	SettingScript = "script"
)

func init() {
	_ = service.RegisterFactory(&EngineTesterFactory{})
}

type EngineTesterFactory struct {
}

// NewService creates the scripted engine from the "script" (file path) and "port" settings
func (s *EngineTesterFactory) NewService(config *service.Config) (service.Service, error) {
	scriptPath, err := coerce.ToString(config.Settings[SettingScript])
	if err != nil || scriptPath == "" {
		return nil, errors.New("engine tester requires a script setting")
	}

	script, err := LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}

	return NewRestEngineTester(script, config.Settings)
}

// RestEngineTester serves a scripted engine over the workflow engine REST API
type RestEngineTester struct {
	engine *Engine
	router *httprouter.Router
	server *support.Server
	logger log.Logger
}

func NewRestEngineTester(script *Script, settings map[string]interface{}) (*RestEngineTester, error) {
	logger := log.ChildLogger(log.RootLogger(), "tester")

	engine, err := NewEngine(script, logger)
	if err != nil {
		return nil, err
	}

	et := &RestEngineTester{engine: engine, logger: logger}
	if err := et.init(settings); err != nil {
		return nil, err
	}
	return et, nil
}

func (et *RestEngineTester) Name() string {
	return services.ServiceEngineTester
}

func (et *RestEngineTester) Start() error {
	if err := et.server.Start(); err != nil {
		return err
	}
	et.logger.Infof("Scripted engine listening on %s", et.server.ListenAddr())
	return nil
}

func (et *RestEngineTester) Stop() error {
	return et.server.Stop(5 * time.Second)
}

// Handler returns the REST handler, for use without the built-in server
func (et *RestEngineTester) Handler() http.Handler {
	return et.router
}

// Engine returns the scripted engine backing the service
func (et *RestEngineTester) Engine() *Engine {
	return et.engine
}

// Addr returns the address the server is bound to once started
func (et *RestEngineTester) Addr() string {
	return et.server.ListenAddr()
}

func (et *RestEngineTester) init(settings map[string]interface{}) error {
	router := httprouter.New()

	router.OPTIONS("/workflow/:id/start", handleOption)
	router.POST("/workflow/:id/start", et.StartWorkflow)

	router.OPTIONS("/workflow/:id/instances/:instanceId", handleOption)
	router.GET("/workflow/:id/instances/:instanceId", et.GetInstance)

	router.OPTIONS("/workflow/:id/instances/:instanceId/submit-task", handleOption)
	router.POST("/workflow/:id/instances/:instanceId/submit-task", et.SubmitTask)

	router.OPTIONS("/status", handleOption)
	router.GET("/status", et.Status)

	port := DefaultPort
	if sPort, set := settings[SettingPort]; set {
		var err error
		port, err = coerce.ToInt(sPort)
		if err != nil {
			return err
		}
	}

	et.router = router
	et.server = support.NewServer(":"+strconv.Itoa(port), router)
	return nil
}

func handleOption(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	w.Header().Add("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "*")
	w.Header().Add("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Add("Access-Control-Allow-Headers", "Authorization")
	w.Header().Add("Access-Control-Allow-Headers", "Accept")
	w.Header().Set("Content-Type", "application/json")
}

// StartWorkflow starts a new instance (POST "/workflow/:id/start").
//
// $ curl -H "Content-Type: application/json" -X POST -d '{"data":{}}' http://localhost:8000/workflow/wf1/start
func (et *RestEngineTester) StartWorkflow(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req := &StartRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	workflowId := p.ByName("id")
	instanceId, err := et.engine.Start(workflowId, req.Data)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}

	et.logger.Debugf("Started Instance [ID:%s] for %s", instanceId, workflowId)
	writeJSON(w, http.StatusOK, &IDResponse{WorkflowId: workflowId, InstanceId: instanceId}, et.logger)
}

// GetInstance serves the next scripted snapshot (GET "/workflow/:id/instances/:instanceId")
func (et *RestEngineTester) GetInstance(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	snapshot, err := et.engine.Fetch(p.ByName("id"), p.ByName("instanceId"))
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snapshot, et.logger)
}

// SubmitTask accepts the data of the awaited task (POST "/workflow/:id/instances/:instanceId/submit-task")
func (et *RestEngineTester) SubmitTask(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req := &SubmitRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := et.engine.Submit(p.ByName("id"), p.ByName("instanceId"), req.TaskId, req.Data)
	var notReady *TaskNotReadyError
	if errors.As(err, &notReady) {
		writeJSON(w, http.StatusOK, &submitResponse{Success: false, Message: err.Error()}, et.logger)
		return
	}
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &submitResponse{Success: true}, et.logger)
}

// Status is a basic health check for the server to determine if it is up
func (et *RestEngineTester) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Add("Access-Control-Allow-Origin", "*")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func statusOf(err error) int {
	var stepErr *StepError
	switch {
	case errors.As(err, &stepErr):
		return stepErr.Status
	case errors.Is(err, ErrWorkflowNotFound), errors.Is(err, ErrInstanceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger log.Logger) {
	w.Header().Add("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Unable to encode response: %v", err)
	}
}
