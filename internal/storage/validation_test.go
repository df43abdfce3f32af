package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name      string
		str       string
		paramName string
		wantErr   bool
	}{
		{
			name:      "valid string",
			str:       "test",
			paramName: "param",
			wantErr:   false,
		},
		{
			name:      "empty string",
			str:       "",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "whitespace only",
			str:       "   ",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "string with spaces",
			str:       "  test  ",
			paramName: "param",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, tt.paramName)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.paramName) {
				t.Errorf("validateString() error should contain param name %s, got %v", tt.paramName, err)
			}
		})
	}
}

func TestValidateRun(t *testing.T) {
	valid := func() *model.ImportRun {
		return &model.ImportRun{
			ID:     "run-1",
			UserID: "u1",
			JobID:  "job-1",
			Status: model.RunProcessing,
		}
	}

	tests := []struct {
		run     *model.ImportRun
		wantErr error
		name    string
		errMsg  string
	}{
		{
			name: "valid run",
			run:  valid(),
		},
		{
			name:    "nil run",
			run:     nil,
			wantErr: ErrNilParameter,
			errMsg:  "run",
		},
		{
			name:    "missing ID",
			run:     func() *model.ImportRun { r := valid(); r.ID = ""; return r }(),
			wantErr: ErrInvalidRun,
			errMsg:  "missing ID",
		},
		{
			name:    "missing user",
			run:     func() *model.ImportRun { r := valid(); r.UserID = ""; return r }(),
			wantErr: ErrInvalidRun,
			errMsg:  "missing user ID",
		},
		{
			name:    "missing job",
			run:     func() *model.ImportRun { r := valid(); r.JobID = ""; return r }(),
			wantErr: ErrInvalidRun,
			errMsg:  "missing job ID",
		},
		{
			name:    "unknown status",
			run:     func() *model.ImportRun { r := valid(); r.Status = "paused"; return r }(),
			wantErr: ErrInvalidStatus,
			errMsg:  "paused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRun(tt.run)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateRun() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateRun() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateRun() error should contain %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidateStatus(t *testing.T) {
	for _, s := range []model.RunStatus{model.RunProcessing, model.RunComplete, model.RunFailed} {
		if err := validateStatus(s); err != nil {
			t.Errorf("validateStatus(%q) unexpected error = %v", s, err)
		}
	}
	for _, s := range []model.RunStatus{"", "pending", "COMPLETE"} {
		if err := validateStatus(s); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("validateStatus(%q) error = %v, want %v", s, err, ErrInvalidStatus)
		}
	}
}

func TestValidateExecution(t *testing.T) {
	tests := []struct {
		exec    model.Execution
		name    string
		errMsg  string
		wantErr bool
	}{
		{
			name: "valid execution",
			exec: model.Execution{ID: "e1", UserID: "u1"},
		},
		{
			name:    "missing ID",
			exec:    model.Execution{UserID: "u1"},
			wantErr: true,
			errMsg:  "missing ID",
		},
		{
			name:    "missing user",
			exec:    model.Execution{ID: "e1"},
			wantErr: true,
			errMsg:  "missing user ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateExecution(&tt.exec)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateExecution() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidExecution) {
				t.Errorf("validateExecution() error = %v, want %v", err, ErrInvalidExecution)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateExecution() error should contain %q, got %v", tt.errMsg, err)
			}
		})
	}
}
