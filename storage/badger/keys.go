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

package badger

import (
	"fmt"
	"strings"

	"github.com/poiesic/docpipe/core"
)

const (
	recordPrefix    = "doc_state"
	lockPrefix      = "doc_lock"
	artifactPrefix  = "doc_processing"
	chunkPrefix     = "chunk"
	versionSequence = "doc_version_seq"
)

// makeRecordKey generates the key of the processing record for fp.
// Format: doc_state:fingerprint
func makeRecordKey(fp core.Fingerprint) []byte {
	return []byte(recordPrefix + ":" + string(fp))
}

// makeLockKey generates the key of the lease on fp.
// Format: doc_lock:fingerprint
func makeLockKey(fp core.Fingerprint) []byte {
	return []byte(lockPrefix + ":" + string(fp))
}

// makeArtifactKey generates the key of a cached stage artifact.
// Format: doc_processing:fingerprint:stage
func makeArtifactKey(fp core.Fingerprint, stage core.Stage) []byte {
	return []byte(artifactPrefix + ":" + string(fp) + ":" + stage.String())
}

// makePartialArtifactKey generates the prefix shared by all artifacts of fp.
func makePartialArtifactKey(fp core.Fingerprint) []byte {
	return []byte(artifactPrefix + ":" + string(fp) + ":")
}

// makeChunkKey generates the key of a stored chunk.
// The zero padded index keeps a document's chunks in order.
// Format: chunk:fingerprint:index
func makeChunkKey(fp core.Fingerprint, index int) []byte {
	return []byte(fmt.Sprintf("%s:%s:%08d", chunkPrefix, fp, index))
}

// makePartialChunkKey generates the prefix shared by all chunks of fp.
func makePartialChunkKey(fp core.Fingerprint) []byte {
	return []byte(chunkPrefix + ":" + string(fp) + ":")
}

// fingerprintFromRecordKey extracts the fingerprint from a record key.
func fingerprintFromRecordKey(key []byte) (core.Fingerprint, bool) {
	fp, ok := strings.CutPrefix(string(key), recordPrefix+":")
	if !ok {
		return "", false
	}
	return core.Fingerprint(fp), true
}
