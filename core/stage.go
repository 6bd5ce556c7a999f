// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "fmt"

// Stage is a step of the processing state machine.
type Stage int

const (
	StageUploaded Stage = iota + 1
	StageExtracted
	StageChunked
	StageStored
	StageFailed
)

var stageNames = map[Stage]string{
	StageUploaded:  "uploaded",
	StageExtracted: "extracted",
	StageChunked:   "chunked",
	StageStored:    "stored",
	StageFailed:    "failed",
}

// String returns the persisted name of the stage.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == name {
			return stage, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStage, name)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// Terminal reports whether no forward transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageStored || s == StageFailed
}

// Cacheable reports whether the output of s is kept as an artifact.
func (s Stage) Cacheable() bool {
	return s == StageExtracted || s == StageChunked
}

// Next returns the forward successor of s, or 0 if there is none.
func (s Stage) Next() Stage {
	switch s {
	case StageUploaded:
		return StageExtracted
	case StageExtracted:
		return StageChunked
	case StageChunked:
		return StageStored
	}
	return 0
}

// Previous returns the stage preceding s on the forward path, or 0.
func (s Stage) Previous() Stage {
	switch s {
	case StageExtracted:
		return StageUploaded
	case StageChunked:
		return StageExtracted
	case StageStored:
		return StageChunked
	}
	return 0
}

// CanTransitionTo reports whether s may move to target.
// Stages advance one step at a time; any non-terminal stage may fail.
func (s Stage) CanTransitionTo(target Stage) bool {
	if target == StageFailed {
		return s.Valid() && !s.Terminal()
	}
	return target != 0 && s.Next() == target
}
