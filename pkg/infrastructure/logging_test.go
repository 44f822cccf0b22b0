package infrastructure_test

import (
	"errors"
	"testing"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zaptest"

	"github.com/linguakid/linguakid/pkg/infrastructure"
)

func TestNewFxLoggerAdapter(t *testing.T) {
	logger := zaptest.NewLogger(t)

	adapter := infrastructure.NewFxLoggerAdapter(logger)

	var _ fxevent.Logger = adapter

	if adapter == nil {
		t.Fatal("NewFxLoggerAdapter returned nil")
	}
}

func TestFxLoggerAdapter_LogEvent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	adapter := infrastructure.NewFxLoggerAdapter(logger)

	// Exercise all event shapes to ensure none panic.
	events := []fxevent.Event{
		&fxevent.OnStartExecuting{FunctionName: "testFunc", CallerName: "testCaller"},
		&fxevent.OnStartExecuted{FunctionName: "testFunc", CallerName: "testCaller"},
		&fxevent.OnStartExecuted{FunctionName: "testFunc", CallerName: "testCaller", Err: errors.New("start failed")},
		&fxevent.OnStopExecuting{FunctionName: "testFunc", CallerName: "testCaller"},
		&fxevent.OnStopExecuted{FunctionName: "testFunc", CallerName: "testCaller"},
		&fxevent.Supplied{TypeName: "string"},
		&fxevent.Provided{OutputTypeNames: []string{"*zap.Logger"}},
		&fxevent.Provided{OutputTypeNames: []string{"*zap.Logger"}, Err: errors.New("provide failed")},
		&fxevent.Invoking{FunctionName: "testFunc"},
		&fxevent.Invoked{FunctionName: "testFunc"},
		&fxevent.Invoked{FunctionName: "testFunc", Err: errors.New("invoke failed")},
		&fxevent.Stopping{},
		&fxevent.Stopped{},
		&fxevent.RollingBack{StartErr: errors.New("rollback cause")},
		&fxevent.RolledBack{},
		&fxevent.Started{},
		&fxevent.Started{Err: errors.New("startup failed")},
		&fxevent.LoggerInitialized{ConstructorName: "NewZapLogger"},
	}

	for _, event := range events {
		adapter.LogEvent(event)
	}
}
