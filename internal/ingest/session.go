package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// State is a client-side import session state.
type State string

// Session states.
const (
	StateIdle      State = "idle"
	StateParsing   State = "parsing"
	StateMapping   State = "mapping"
	StateImporting State = "importing"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// ErrInvalidTransition is returned when a session method is called in a
// state that does not allow it.
var ErrInvalidTransition = errors.New("invalid session transition")

var transitions = map[State][]State{
	StateIdle:      {StateParsing},
	StateParsing:   {StateMapping, StateFailed},
	StateMapping:   {StateMapping, StateImporting, StateFailed},
	StateImporting: {StateImporting, StateComplete, StateFailed},
}

// Importer is the server half of an import.
type Importer interface {
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
	Configure(ctx context.Context, userID, jobID string, req ConfigureRequest) (*model.ImportRun, error)
	CommitChunk(ctx context.Context, userID string, req ChunkRequest) (*ChunkResponse, error)
}

// Session drives one import through upload, mapping and chunked commit,
// keeping the cursor it needs to resume.
type Session struct {
	importer  Importer
	start     *StartResult
	last      *ChunkResponse
	err       error
	userID    string
	jobID     string
	state     State
	cursor    int
	chunkSize int
}

// NewSession creates an idle session. A non-positive chunk size uses
// DefaultChunkSize.
func NewSession(importer Importer, userID string, chunkSize int) *Session {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	return &Session{
		importer:  importer,
		userID:    userID,
		chunkSize: chunkSize,
		state:     StateIdle,
	}
}

// ResumeSession attaches to a run that already has committed progress.
func ResumeSession(importer Importer, run *model.ImportRun, chunkSize int) (*Session, error) {
	if !run.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrRunNotActive, run.Status)
	}
	s := NewSession(importer, run.UserID, chunkSize)
	s.jobID = run.JobID
	s.cursor = run.LastRowIndex
	s.state = StateImporting
	return s, nil
}

// State reports the current state.
func (s *Session) State() State { return s.state }

// JobID is the server job token, empty before Begin succeeds.
func (s *Session) JobID() string { return s.jobID }

// Cursor is the data row index the next chunk starts at.
func (s *Session) Cursor() int { return s.cursor }

// Proposal is the result of Begin.
func (s *Session) Proposal() *StartResult { return s.start }

// Last is the most recent chunk response.
func (s *Session) Last() *ChunkResponse { return s.last }

// Err is the error that moved the session to failed.
func (s *Session) Err() error { return s.err }

func (s *Session) transition(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			slog.Debug("Import session transition", "job_id", s.jobID, "from", s.state, "to", to)
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
}

func (s *Session) failed(err error) error {
	s.err = err
	s.state = StateFailed
	return err
}

// Begin uploads the file and moves to mapping.
func (s *Session) Begin(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := s.transition(StateParsing); err != nil {
		return nil, err
	}
	req.UserID = s.userID

	res, err := s.importer.Start(ctx, req)
	if err != nil {
		return nil, s.failed(err)
	}
	s.start = res
	s.jobID = res.JobID
	return res, s.transition(StateMapping)
}

// Configure overrides the proposed mapping. It may be called repeatedly
// before the first chunk.
func (s *Session) Configure(ctx context.Context, req ConfigureRequest) error {
	if s.state != StateMapping {
		return fmt.Errorf("%w: configure in %s", ErrInvalidTransition, s.state)
	}
	run, err := s.importer.Configure(ctx, s.userID, s.jobID, req)
	if err != nil {
		// A rejected mapping leaves the session free to try another.
		return err
	}
	s.start.Mode = run.Mode
	s.start.Mapping = run.Mapping
	return nil
}

// Next commits the chunk at the cursor.
func (s *Session) Next(ctx context.Context) (*ChunkResponse, error) {
	if err := s.transition(StateImporting); err != nil {
		return nil, err
	}

	resp, err := s.importer.CommitChunk(ctx, s.userID, ChunkRequest{
		JobID:  s.jobID,
		Offset: s.cursor,
		Limit:  s.chunkSize,
	})
	if err != nil {
		var failure *ChunkFailure
		if !errors.As(err, &failure) {
			return nil, s.failed(err)
		}
		s.last = failure.Response
		if !failure.RunOpen {
			return nil, s.failed(err)
		}
		// The chunk is lost but the run continues; Next moves past it.
		if failure.Response != nil && failure.Response.NextOffset > s.cursor {
			s.cursor = failure.Response.NextOffset
		}
		return nil, err
	}

	s.last = resp
	if resp.NextOffset > s.cursor {
		s.cursor = resp.NextOffset
	}
	if resp.Complete {
		return resp, s.transition(StateComplete)
	}
	return resp, nil
}

// ImportAll commits chunks until the run completes or a chunk fails. onChunk,
// when set, sees every chunk response. After a failed chunk that left the
// run open the session can be continued with Next or ImportAll.
func (s *Session) ImportAll(ctx context.Context, onChunk func(*ChunkResponse)) (*ChunkResponse, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.last, err
		}
		resp, err := s.Next(ctx)
		if err != nil {
			return s.last, err
		}
		if onChunk != nil {
			onChunk(resp)
		}
		if resp.Complete {
			return resp, nil
		}
	}
}
