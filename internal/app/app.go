// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/internal/conversation"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// registerLifecycleHooks ties the conversation session to the Fx
// application lifecycle: the session connects on start and disconnects
// on stop.
func registerLifecycleHooks(lc fx.Lifecycle, m *conversation.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application: connecting conversation session")

			err := m.Connect(ctx, conversation.Handlers{
				StateChanged: func(s conversation.State) {
					logger.Info("Session state", zap.String("state", string(s)))
				},
				Utterance: func(u conversation.Utterance) {
					speaker := "teacher"
					if u.IsUser {
						speaker = "student"
					}
					logger.Info("Transcript updated",
						zap.String("speaker", speaker),
						zap.String("text", u.Text))
				},
				Interrupted: func() {
					logger.Debug("Playback interrupted by user speech")
				},
			})
			if err != nil {
				logger.Error("Failed to connect session", zap.Error(err))

				return err
			}

			logger.Info("Application started successfully",
				zap.String("session_id", m.SessionID().String()))

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application: disconnecting conversation session")
			m.Disconnect()

			return nil
		},
	})
}
