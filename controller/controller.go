// Package controller implements the HTTP surface. Handlers are methods of a
// Server carrying the wired domain services; they bind and validate input,
// resolve the caller's capability through the policy gate, call the domain
// layer, and write the standard response envelope.
package controller

import (
	"github.com/playletworks/drama-api/billing"
	"github.com/playletworks/drama-api/pipeline"
	"github.com/playletworks/drama-api/policy"
	"github.com/playletworks/drama-api/storage"
)

type Server struct {
	gate        *policy.Gate
	quota       *billing.Engine
	engine      *pipeline.Engine
	coordinator *pipeline.Coordinator
	reporter    *pipeline.Reporter
	store       storage.ArtifactStore
}

func NewServer(
	gate *policy.Gate,
	quota *billing.Engine,
	engine *pipeline.Engine,
	coordinator *pipeline.Coordinator,
	reporter *pipeline.Reporter,
	store storage.ArtifactStore,
) *Server {
	return &Server{
		gate:        gate,
		quota:       quota,
		engine:      engine,
		coordinator: coordinator,
		reporter:    reporter,
		store:       store,
	}
}
