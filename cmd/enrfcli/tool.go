package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/Station-Manager/iocdi"
	"github.com/Station-Manager/utils"
	"github.com/rs/zerolog"

	"github.com/Station-Manager/enrf"
)

const (
	workingDirBean = "WorkingDir"
	configBean     = "config"
	loggerBean     = "logger"
	toolBean       = "enrf"

	defaultConfigFile = "enrf.yaml"
)

// tool owns the session of one enrfcli invocation. The container injects
// its configuration and logger.
type tool struct {
	Config *enrf.Config    `di.inject:"config"`
	Logger *zerolog.Logger `di.inject:"logger"`

	session *enrf.Session
	version string

	initOnce sync.Once
	initErr  error
}

// Initialize dials the peripheral. It may be called more than once.
func (t *tool) Initialize() error {
	t.initOnce.Do(func() {
		t.initErr = t.doInitialize()
	})
	return t.initErr
}

func (t *tool) doInitialize() error {
	if t.Config == nil || t.Logger == nil {
		return errors.New("enrfcli: configuration or logger not injected")
	}
	sess, version, err := enrf.Dial(context.Background(), *t.Config, *t.Logger)
	if err != nil {
		return err
	}
	t.session, t.version = sess, version
	return nil
}

// Close closes the session if one was opened.
func (t *tool) Close() error {
	if t.session == nil {
		return nil
	}
	return t.session.Close()
}

// newTool registers the shared instances and the tool in a container, builds
// it and returns the initialized tool.
func newTool(wd string, cfg *enrf.Config, log *zerolog.Logger) (*tool, error) {
	container := iocdi.New()
	if err := container.RegisterInstance(workingDirBean, wd); err != nil {
		return nil, err
	}
	if err := container.RegisterInstance(configBean, cfg); err != nil {
		return nil, err
	}
	if err := container.RegisterInstance(loggerBean, log); err != nil {
		return nil, err
	}
	if err := container.Register(toolBean, reflect.TypeOf((*tool)(nil))); err != nil {
		return nil, err
	}
	if err := container.Build(); err != nil {
		return nil, err
	}

	bean, err := container.ResolveSafe(toolBean)
	if err != nil {
		return nil, err
	}
	t, ok := bean.(*tool)
	if !ok {
		return nil, fmt.Errorf("enrfcli: %s is not a tool", toolBean)
	}
	if err = t.Initialize(); err != nil {
		return nil, err
	}
	return t, nil
}

// workingDir returns the Station Manager working directory, exporting it for
// child processes the same way the other tools do.
func workingDir() (string, error) {
	wd, err := utils.WorkingDir()
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if err = os.Setenv(utils.EnvSmWorkingDir, wd); err != nil {
		return "", err
	}
	return wd, nil
}

// configPath picks the explicit path, or enrf.yaml in wd when it exists.
func configPath(explicit, wd string) string {
	if explicit != "" {
		return explicit
	}
	p := filepath.Join(wd, defaultConfigFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
