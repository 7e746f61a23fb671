package camtparser

import (
	"runtime"
	"sync"

	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/parsererror"
)

// concurrentThreshold is the entry count from which decoding is spread over workers
const concurrentThreshold = 100

// EntryResult is the outcome of decoding one entry
type EntryResult struct {
	Entry models.RawEntry
	Err   *parsererror.MalformedMessageError
}

// EntryFunc decodes the entry at the given 1-based index
type EntryFunc func(index int, entry *models.Entry) EntryResult

// ConcurrentProcessor handles parallel decoding of statement entries
type ConcurrentProcessor struct {
	logger      logging.Logger
	workerCount int
}

// NewConcurrentProcessor creates a new concurrent processor
func NewConcurrentProcessor(logger logging.Logger) *ConcurrentProcessor {
	return &ConcurrentProcessor{
		logger:      logger,
		workerCount: runtime.NumCPU(),
	}
}

// ProcessEntries applies fn to every entry and returns the results in document order
func (cp *ConcurrentProcessor) ProcessEntries(entries []models.Entry, fn EntryFunc) []EntryResult {
	// Use sequential processing for small statements to avoid overhead
	if len(entries) < concurrentThreshold || cp.workerCount < 2 {
		return cp.processSequential(entries, fn)
	}
	return cp.processConcurrent(entries, fn)
}

func (cp *ConcurrentProcessor) processSequential(entries []models.Entry, fn EntryFunc) []EntryResult {
	results := make([]EntryResult, len(entries))
	for i := range entries {
		results[i] = fn(i+1, &entries[i])
	}
	return results
}

func (cp *ConcurrentProcessor) processConcurrent(entries []models.Entry, fn EntryFunc) []EntryResult {
	results := make([]EntryResult, len(entries))
	work := make(chan int, cp.workerCount)

	var wg sync.WaitGroup
	for w := 0; w < cp.workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				// each worker writes only its own slots
				results[i] = fn(i+1, &entries[i])
			}
		}()
	}

	for i := range entries {
		work <- i
	}
	close(work)
	wg.Wait()

	cp.logger.Debug("Concurrent entry decoding completed",
		logging.F(logging.FieldCount, len(entries)),
		logging.F("workers", cp.workerCount))

	return results
}
