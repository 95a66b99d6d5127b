package metrics

// Ingest and index collectors.
var (
	IngestTotal = counterVec("ingest_total", "Ingest runs by outcome", "status")

	IngestDuration = histogram("ingest_duration_seconds", "Wall time of successful ingest runs",
		[]float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600})

	IndexChunks    = gauge("index_chunks", "Chunks in the published index")
	IndexDocuments = gauge("index_documents", "Documents in the published index")

	// result is loaded, skipped or failed
	LoaderFilesTotal = counterVec("loader_files_total", "Files seen by the loader", "adapter", "result")
)

// Query collectors.
var (
	QueryTotal = counterVec("query_total", "Queries by outcome", "status")

	// stage is embed, retrieve or generate
	QueryStageDuration = histogramVec("query_stage_duration_seconds", "Query pipeline stage latency",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, "stage")
)
