// Package mock provides call-counting test doubles for the stage executors.
//
// Each mock has a function field that replaces its default behavior, which
// is how tests inject failures, slow stages and blocking hooks:
//
//	extractor := mock.NewMockExtractor()
//	extractor.ExtractFunc = func(ctx context.Context, data []byte, source string) ([]core.Document, error) {
//	    <-release
//	    return mock.DefaultDocuments(data, source), nil
//	}
//
// Function fields must be set before the mock is shared between goroutines.
package mock
