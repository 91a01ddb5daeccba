package deployment

import (
	"errors"
	"fmt"
	"strings"
)

// packDefaults are the fallback settings a build pack uses when the request leaves them empty
type packDefaults struct {
	port             int
	installCommand   string
	buildCommand     string
	startCommand     string
	publishDirectory string
}

var nodeDefaults = packDefaults{
	port:           3000,
	installCommand: "npm install",
	buildCommand:   "npm run build",
	startCommand:   "npm start",
}

var staticDefaults = packDefaults{
	port:             80,
	installCommand:   "npm install",
	buildCommand:     "npm run build",
	publishDirectory: "/",
}

var defaultsByPack = map[BuildPackKind]packDefaults{
	BuildPackNode:     nodeDefaults,
	BuildPackNextJS:   nodeDefaults,
	BuildPackNuxtJS:   nodeDefaults,
	BuildPackStatic:   staticDefaults,
	BuildPackReact:    {port: 80, installCommand: "npm install", buildCommand: "npm run build", publishDirectory: "/build"},
	BuildPackVueJS:    {port: 80, installCommand: "npm install", buildCommand: "npm run build", publishDirectory: "/dist"},
	BuildPackSvelte:   {port: 80, installCommand: "npm install", buildCommand: "npm run build", publishDirectory: "/public"},
	BuildPackGatsby:   {port: 80, installCommand: "npm install", buildCommand: "npm run build", publishDirectory: "/public"},
	BuildPackAstro:    {port: 80, installCommand: "npm install", buildCommand: "npm run build", publishDirectory: "/dist"},
	BuildPackEleventy: {port: 80, installCommand: "npm install", buildCommand: "npm run build", publishDirectory: "/_site"},
	BuildPackPython:   {port: 8000},
	BuildPackPHP:      {port: 80},
	BuildPackLaravel:  {port: 80},
	BuildPackRust:     {port: 3000},
	BuildPackDeno:     {port: 8000},
	BuildPackDocker:   {port: 3000},
	BuildPackRailpack: {port: 3000},
	BuildPackNoop:     {port: 3000},
}

// ApplyDefaults returns a copy of r with empty build settings filled from its build pack.
// Unknown packs are returned unchanged.
func ApplyDefaults(r Request) Request {
	d, ok := defaultsByPack[r.BuildPack]
	if !ok {
		return r
	}
	if r.Port == 0 {
		r.Port = d.port
	}
	if r.InstallCommand == "" {
		r.InstallCommand = d.installCommand
	}
	if r.BuildCommand == "" {
		r.BuildCommand = d.buildCommand
	}
	if r.StartCommand == "" {
		r.StartCommand = d.startCommand
	}
	if r.PublishDirectory == "" {
		r.PublishDirectory = d.publishDirectory
	}
	if r.BaseDirectory == "" {
		r.BaseDirectory = "/"
	}
	if r.BuildPack == BuildPackDocker && r.DockerfileLocation == "" {
		r.DockerfileLocation = "/Dockerfile"
	}
	if r.BuildPack == BuildPackDeno && r.DenoMainFile == "" {
		r.DenoMainFile = "main.ts"
	}
	return r
}

// ErrInvalidRequest is returned for requests missing required fields
var ErrInvalidRequest = errors.New("invalid deployment request")

// Validate checks the fields every deployment needs
func (r *Request) Validate() error {
	switch {
	case r.ApplicationID == "":
		return fmt.Errorf("%w: application id is required", ErrInvalidRequest)
	case r.BuildID == "":
		return fmt.Errorf("%w: build id is required", ErrInvalidRequest)
	case r.Repository == "":
		return fmt.Errorf("%w: repository is required", ErrInvalidRequest)
	case r.BuildPack == "":
		return fmt.Errorf("%w: build pack is required", ErrInvalidRequest)
	case r.Destination.ID == "":
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	if r.Port < 0 || r.Port > 65535 || r.ExposePort < 0 || r.ExposePort > 65535 {
		return fmt.Errorf("%w: port out of range", ErrInvalidRequest)
	}
	for _, s := range r.Secrets {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the secret fits on one KEY=VALUE line of an env file.
// The value is never part of the error.
func (s Secret) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: secret name is required", ErrInvalidRequest)
	case strings.ContainsAny(s.Name, "=\r\n \t"):
		return fmt.Errorf("%w: secret %q has an invalid name", ErrInvalidRequest, s.Name)
	case strings.ContainsAny(s.Value, "\r\n"):
		return fmt.Errorf("%w: secret %q has a multi-line value", ErrInvalidRequest, s.Name)
	}
	return nil
}
