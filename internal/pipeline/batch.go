package pipeline

import (
	"sync"

	"cell-segm/internal/imgproc"
)

// BatchResult pairs one input path with its segmentation or failure. A
// failed image never aborts the batch.
type BatchResult struct {
	Index  int
	Path   string
	Result *Result
	Err    error
}

// SegmentBatch segments many images concurrently with a fixed worker pool.
// Results are returned indexed like the input paths.
func (s *Segmenter) SegmentBatch(paths []string, workers int) []BatchResult {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	results := make([]BatchResult, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.segmentOne(i, paths[i])
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *Segmenter) segmentOne(i int, path string) BatchResult {
	br := BatchResult{Index: i, Path: path}
	img, err := imgproc.Load(path)
	if err != nil {
		s.Log.Error().Err(err).Str("image", path).Msg("loading image failed")
		br.Err = err
		return br
	}
	res, err := s.SegmentImage(img)
	if err != nil {
		s.Log.Error().Err(err).Str("image", path).Msg("segmentation failed")
		br.Err = err
		return br
	}
	br.Result = res
	return br
}
