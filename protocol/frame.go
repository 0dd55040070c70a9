package protocol

// Frame types of the streaming response encoding. One frame is one JSON
// object per line, tagged by its "type" key.
const (
	// FrameSchema carries an ordered column-name list in "columns".
	FrameSchema = "schema"

	// FrameBatch carries an array of rows in "rows".
	FrameBatch = "batch"

	// FrameRow carries a single row in "values", either positional
	// (array) or already keyed (object).
	FrameRow = "row"

	// FrameEnd terminates the sequence. Frames after it are discarded.
	FrameEnd = "end"
)
