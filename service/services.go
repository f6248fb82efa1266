package service

const (
	// ServiceMonitor is the name of the monitor service used in configuration
	ServiceMonitor string = "flowwatchMonitor"

	// ServiceEngineTester is the name of the scripted engine service used in configuration
	ServiceEngineTester string = "engineTester"
)
