// Package rpc exposes the lakehouse agent as a Connect service. Messages are
// plain Go structs carried by a JSON codec.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/assistant"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/translate"
)

// ServiceName is the fully-qualified Connect service name.
const ServiceName = "lakehouse.v1.LakehouseService"

// Procedure paths.
const (
	RunPipelineProcedure = "/" + ServiceName + "/RunPipeline"
	TranslateProcedure   = "/" + ServiceName + "/Translate"
	AskProcedure         = "/" + ServiceName + "/Ask"
	GetRunProcedure      = "/" + ServiceName + "/GetRun"
)

// Runner executes pipeline runs.
type Runner interface {
	Run(ctx context.Context, cfg pipeline.StageConfig) (*pipeline.PipelineRun, error)
}

// Translator turns a question into a structured response.
type Translator interface {
	Translate(ctx context.Context, question string) translate.Response
}

// Asker answers a question end to end.
type Asker interface {
	Ask(ctx context.Context, question string) (*assistant.Answer, error)
}

// RunPipelineRequest is empty; the stage configuration comes from the server.
type RunPipelineRequest struct{}

// RunPipelineResponse carries the finished run.
type RunPipelineResponse struct {
	Run *pipeline.PipelineRun `json:"run"`
}

// QuestionRequest is shared by Translate and Ask.
type QuestionRequest struct {
	Question string `json:"question"`
}

// TranslateResponse is the structured model answer.
type TranslateResponse struct {
	Response translate.Response `json:"response"`
}

// AskResponse is the deduplicated answer.
type AskResponse struct {
	Answer *assistant.Answer `json:"answer"`
}

// GetRunRequest names a run.
type GetRunRequest struct {
	RunID string `json:"run_id"`
}

// GetRunResponse carries a persisted run and its records.
type GetRunResponse struct {
	Run     *runlog.Run     `json:"run"`
	Records []runlog.Record `json:"records"`
}

// Service implements the Connect procedures.
type Service struct {
	logger     *observability.Logger
	runner     Runner
	stages     func() pipeline.StageConfig
	translator Translator
	asker      Asker
	runs       runlog.Store
}

// NewService creates a Service. stages supplies the run input for every
// RunPipeline call.
func NewService(logger *observability.Logger, runner Runner, stages func() pipeline.StageConfig, translator Translator, asker Asker, runs runlog.Store) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		logger:     logger.WithComponent("rpc"),
		runner:     runner,
		stages:     stages,
		translator: translator,
		asker:      asker,
		runs:       runs,
	}
}

// RunPipeline runs the pipeline to completion.
func (s *Service) RunPipeline(ctx context.Context, req *connect.Request[RunPipelineRequest]) (*connect.Response[RunPipelineResponse], error) {
	run, err := s.runner.Run(ctx, s.stages())
	if err != nil && run == nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("Pipeline run interrupted")
	}
	return connect.NewResponse(&RunPipelineResponse{Run: run}), nil
}

// Translate returns the model's structured answer without running it.
func (s *Service) Translate(ctx context.Context, req *connect.Request[QuestionRequest]) (*connect.Response[TranslateResponse], error) {
	if req.Msg.Question == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("question is required"))
	}
	return connect.NewResponse(&TranslateResponse{Response: s.translator.Translate(ctx, req.Msg.Question)}), nil
}

// Ask translates, executes and deduplicates.
func (s *Service) Ask(ctx context.Context, req *connect.Request[QuestionRequest]) (*connect.Response[AskResponse], error) {
	ans, err := s.asker.Ask(ctx, req.Msg.Question)
	if errors.Is(err, assistant.ErrEmptyQuestion) {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Ask failed")
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&AskResponse{Answer: ans}), nil
}

// GetRun returns a persisted run.
func (s *Service) GetRun(ctx context.Context, req *connect.Request[GetRunRequest]) (*connect.Response[GetRunResponse], error) {
	if req.Msg.RunID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("run_id is required"))
	}
	run, err := s.runs.GetRun(ctx, req.Msg.RunID)
	if errors.Is(err, runlog.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	records, err := s.runs.List(ctx, req.Msg.RunID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&GetRunResponse{Run: run, Records: records}), nil
}

// Handler returns the mount path and the HTTP handler for every procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RunPipelineProcedure, connect.NewUnaryHandler(RunPipelineProcedure, s.RunPipeline, opts...))
	mux.Handle(TranslateProcedure, connect.NewUnaryHandler(TranslateProcedure, s.Translate, opts...))
	mux.Handle(AskProcedure, connect.NewUnaryHandler(AskProcedure, s.Ask, opts...))
	mux.Handle(GetRunProcedure, connect.NewUnaryHandler(GetRunProcedure, s.GetRun, opts...))
	return "/" + ServiceName + "/", mux
}

// jsonCodec replaces Connect's protobuf-only JSON codec with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
