//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyCommitted is returned when a run is committed twice.
var ErrAlreadyCommitted = errors.New("job run already committed")

// Run is one execution of a job.
type Run struct {
	JobName   string
	Args      map[string]string
	RunID     string
	StartedAt time.Time

	mu          sync.Mutex
	committed   bool
	committedAt time.Time
}

// Init starts a run of the named job with a fresh run id.
func Init(name string, args map[string]string) *Run {
	copied := make(map[string]string, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return &Run{
		JobName:   name,
		Args:      copied,
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Commit marks the run as finished. It may be called once.
func (r *Run) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.committed {
		return ErrAlreadyCommitted
	}
	r.committed = true
	r.committedAt = time.Now().UTC()
	return nil
}

// Committed reports whether Commit succeeded.
func (r *Run) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

// CommittedAt returns when the run was committed, or the zero time.
func (r *Run) CommittedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committedAt
}
