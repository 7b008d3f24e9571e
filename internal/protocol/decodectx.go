package protocol

// Phase is the active decode context (spec §4.2): the same leading
// byte means different things depending on which exchange phase is
// active, so the decoder takes the phase as an explicit parameter
// rather than relying on packet shape alone.
type Phase int

const (
	PhaseLogin Phase = iota
	PhaseCommand
	PhasePrepareResponse   // draining PreparedOK's param/column metadata streams
	PhaseResultMetadata    // draining ColumnDefinition stream of a result set
	PhaseResultRows        // draining Row stream (text or binary)
	PhaseFetchRows         // draining Row stream produced by COM_STMT_FETCH
)

// DecodeState tracks the running state needed across calls within one
// metadata/row stream: how many ColumnDefinitions remain, whether the
// binary row format applies, and the accumulated metadata bundle.
type DecodeState struct {
	Phase Phase

	// ExpectedColumns / ExpectedParams: PreparedOK's announced counts,
	// consumed by PhasePrepareResponse.
	ExpectedColumns int
	ExpectedParams  int
	seenParams      int
	seenColumns     int
	pendingColumns  []ColumnDefinition

	// Binary selects prepared (binary) row decoding over text.
	Binary bool

	// inPrepareResponse distinguishes a PREPARE response's column
	// metadata stream (which returns to PhaseCommand once drained - rows
	// come later, from a separate EXECUTE) from a result set's column
	// metadata stream (which feeds straight into PhaseResultRows).
	inPrepareResponse bool

	// DeprecateEOF mirrors the negotiated CLIENT_DEPRECATE_EOF
	// capability; it changes how the terminal OK/EOF of a metadata or
	// row stream is recognized (spec §4.2).
	DeprecateEOF bool
}

// NewDecodeState starts a fresh state for the login phase.
func NewDecodeState(deprecateEOF bool) *DecodeState {
	return &DecodeState{Phase: PhaseLogin, DeprecateEOF: deprecateEOF}
}

// BeginResult transitions into draining a result set's column
// definitions, given the column count just decoded from ColumnCount.
func (s *DecodeState) BeginResult(columnCount int, binary bool) {
	s.Phase = PhaseResultMetadata
	s.ExpectedColumns = columnCount
	s.seenColumns = 0
	s.pendingColumns = make([]ColumnDefinition, 0, columnCount)
	s.Binary = binary
	s.inPrepareResponse = false
}

// BeginPrepareResponse transitions into draining a PREPARE response's
// parameter and column metadata streams.
func (s *DecodeState) BeginPrepareResponse(paramCount, columnCount int) {
	s.Phase = PhasePrepareResponse
	s.ExpectedParams = paramCount
	s.ExpectedColumns = columnCount
	s.seenParams = 0
	s.seenColumns = 0
	s.pendingColumns = make([]ColumnDefinition, 0, columnCount)
	s.inPrepareResponse = true
}

// ObserveColumn records one ColumnDefinition in the running metadata
// stream, returning the bundle once the expected count is reached
// (without deprecate-EOF, the caller instead waits for the terminal
// EOF - see ObserveMetadataEOF).
func (s *DecodeState) ObserveColumn(col ColumnDefinition) (*MetadataBundle, bool) {
	switch s.Phase {
	case PhasePrepareResponse:
		if s.seenParams < s.ExpectedParams {
			s.seenParams++
			// Parameter metadata bundle is not surfaced to the caller
			// (spec §4.6 only reads param/column counts here); drop it
			// once fully consumed and fall through to column metadata.
			// Without DeprecateEOF a terminal EOF still follows; it is
			// handled by ObservePrepareResponseEOF.
			if s.seenParams == s.ExpectedParams && s.ExpectedColumns == 0 && s.DeprecateEOF {
				s.Phase = PhaseCommand
			}
			return nil, false
		}
		fallthrough
	case PhaseResultMetadata:
		s.pendingColumns = append(s.pendingColumns, col)
		s.seenColumns++
		if s.seenColumns == s.ExpectedColumns && s.DeprecateEOF {
			bundle := &MetadataBundle{Columns: s.pendingColumns}
			s.Phase = s.phaseAfterMetadata()
			return bundle, true
		}
	}
	return nil, false
}

// ObserveMetadataEOF is called when a legacy EOF arrives while a
// metadata stream is being drained (only relevant when DeprecateEOF is
// false); it closes out the bundle and transitions onward.
func (s *DecodeState) ObserveMetadataEOF() *MetadataBundle {
	bundle := &MetadataBundle{Columns: s.pendingColumns}
	s.Phase = s.phaseAfterMetadata()
	return bundle
}

// phaseAfterMetadata is PhaseResultRows for a result set's own column
// stream, but PhaseCommand for a PREPARE response's column stream -
// its rows arrive later, from a separate EXECUTE.
func (s *DecodeState) phaseAfterMetadata() Phase {
	if s.inPrepareResponse {
		return PhaseCommand
	}
	return PhaseResultRows
}

// ObservePrepareResponseEOF is called when a legacy EOF arrives while a
// PREPARE response's metadata is being drained without DeprecateEOF: it
// either separates the parameter substream from the column substream
// (nothing to report), closes out a params-only response with no
// column substream at all (nothing to report), or closes out the
// column substream and returns its bundle.
func (s *DecodeState) ObservePrepareResponseEOF() (*MetadataBundle, bool) {
	if s.seenParams < s.ExpectedParams {
		return nil, false
	}
	if s.ExpectedColumns == 0 {
		s.Phase = PhaseCommand
		return nil, false
	}
	if s.seenColumns < s.ExpectedColumns {
		return nil, false
	}
	bundle := &MetadataBundle{Columns: s.pendingColumns}
	s.Phase = PhaseCommand
	return bundle, true
}

// EndRows transitions back to the command phase once a result's
// terminal OK/EOF has been observed, whether or not the status
// indicates more results exist (spec §4.6): a following result set
// starts with its own ColumnCount, which the command phase decodes.
func (s *DecodeState) EndRows(moreResults bool) {
	if moreResults {
		s.Phase = PhaseCommand
		return
	}
	s.Phase = PhaseCommand
}
