package badger

import "github.com/poiesic/docpipe/storage"

// NewMemoryStores opens an in-memory backend with a state store and a chunk
// repository on top. The caller closes the stores and then the backend.
func NewMemoryStores(opts ...Option) (storage.StateStore, storage.ChunkRepository, *Backend, error) {
	stateStore, backend, err := NewMemoryStateStore(opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	chunkRepo, err := NewChunkRepository(backend)
	if err != nil {
		stateStore.Close()
		backend.Close()
		return nil, nil, nil, err
	}
	return stateStore, chunkRepo, backend, nil
}

// NewMemoryStateStore opens an in-memory backend with a state store on top.
// Closing the store leaves the backend open.
func NewMemoryStateStore(opts ...Option) (storage.StateStore, *Backend, error) {
	backend, err := OpenMemoryBackend()
	if err != nil {
		return nil, nil, err
	}
	stateStore, err := NewStateStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return stateStore, backend, nil
}
