package storagefile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrshabel/flashq"
)

// frameHeaderWidth is sizeof(u64 absolute_offset) + sizeof(u32
// record_byte_length), big-endian, per spec.md §3's record frame.
const frameHeaderWidth = 12

// segment is a single append-only slice of a topic's log: one data
// file plus its offset and time indexes, covering the contiguous
// absolute-offset range [baseOffset, baseOffset+recordCount). It
// generalizes the teacher's segment.go (store+index+baseOffset+
// nextOffset+IsMaxed/Close/Remove) to the spec's two-index, frame-
// length-prefixed, SyncMode-aware layout.
type segment struct {
	dir        string
	baseOffset uint64
	data       *fileIo
	offsetIdx  *offsetIndex
	timeIdx    *timeIndex

	syncMode flashq.SyncMode
	indexCfg IndexingConfig
	logger   *zap.Logger

	writePos        int64
	lastIndexedPos  int64
	lastIndexedTsMs int64
	hasMaxOffset    bool
	maxOffset       uint64
}

// newSegment creates a brand-new, empty active segment at baseOffset.
func newSegment(dir string, baseOffset uint64, syncMode flashq.SyncMode, indexCfg IndexingConfig) (*segment, error) {
	dataPath, idxPath, timeIdxPath := segmentFilenames(dir, baseOffset)

	data, err := openAppendRead(dataPath)
	if err != nil {
		return nil, err
	}
	offIdx, err := newOffsetIndex(idxPath, indexCfg)
	if err != nil {
		data.close()
		return nil, err
	}
	timeIdx, err := newTimeIndex(timeIdxPath, indexCfg)
	if err != nil {
		data.close()
		offIdx.close()
		return nil, err
	}

	return &segment{
		dir:            dir,
		baseOffset:     baseOffset,
		data:           data,
		offsetIdx:      offIdx,
		timeIdx:        timeIdx,
		syncMode:       syncMode,
		indexCfg:       indexCfg,
		logger:         zap.L().Named("storagefile.segment"),
		lastIndexedPos: -1,
	}, nil
}

// recoverSegment reopens an existing segment's three files, validates
// the tail of the data file against the frame format, and truncates
// away any torn trailing write. A frame that is fully present but
// fails to decode is mid-segment corruption and is fatal, per spec.md
// §4.2: recovery only repairs the tail, it never discards interior
// data silently.
func recoverSegment(dir string, baseOffset uint64, syncMode flashq.SyncMode, indexCfg IndexingConfig) (*segment, error) {
	s, err := newSegment(dir, baseOffset, syncMode, indexCfg)
	if err != nil {
		return nil, err
	}

	fileSize, err := s.data.size()
	if err != nil {
		s.close()
		return nil, err
	}

	scanPos := int64(0)
	s.lastIndexedPos = -1
	if _, filePos, ok := s.offsetIdx.readLast(); ok {
		header, payload, frameLen, rerr := s.readFrameAt(int64(filePos))
		if rerr != nil {
			if fileSize-int64(filePos) < frameLen {
				// the last-indexed record itself was torn by the crash; the
				// sparse-index shortcut has nothing to stand on, so drop the
				// stale index entries and let the forward scan below rebuild
				// state from the remaining, still-valid prefix of the file.
				if terr := s.data.truncate(int64(filePos)); terr != nil {
					s.close()
					return nil, terr
				}
				fileSize = int64(filePos)
				// drop every index entry, not just the torn one: the forward
				// scan below starts from byte 0 and rebuilds the index from
				// scratch, so any surviving pre-truncation entry would end up
				// duplicated rather than merely restored.
				s.offsetIdx.truncateToRelOffset(0)
				s.timeIdx.truncateToRelOffset(0)
				s.logger.Warn("truncated torn tail at last indexed record during recovery",
					zap.String("dir", dir), zap.Uint64("baseOffset", baseOffset), zap.Int64("truncatedAt", int64(filePos)))
			} else {
				s.close()
				return nil, rerr
			}
		} else {
			var rec flashq.RecordWithOffset
			if jerr := json.Unmarshal(payload, &rec); jerr != nil {
				s.close()
				return nil, flashq.FromSerializationError(jerr, fmt.Sprintf("recovering segment %d", baseOffset))
			}
			s.hasMaxOffset = true
			s.maxOffset = header.absoluteOffset
			s.lastIndexedPos = int64(filePos)
			if ts, terr := timestampToMillis(rec.Timestamp); terr == nil {
				s.lastIndexedTsMs = ts
			}
			scanPos = int64(filePos) + frameLen
		}
	}

	for {
		if scanPos == fileSize {
			break
		}
		if fileSize-scanPos < frameHeaderWidth {
			if err := s.data.truncate(scanPos); err != nil {
				s.close()
				return nil, err
			}
			s.logger.Warn("truncated torn tail frame during recovery",
				zap.String("dir", dir), zap.Uint64("baseOffset", baseOffset), zap.Int64("truncatedAt", scanPos))
			fileSize = scanPos
			break
		}

		header, payload, frameLen, rerr := s.readFrameAt(scanPos)
		if rerr != nil {
			if fileSize-scanPos < frameLen {
				if err := s.data.truncate(scanPos); err != nil {
					s.close()
					return nil, err
				}
				s.logger.Warn("truncated torn tail frame during recovery",
					zap.String("dir", dir), zap.Uint64("baseOffset", baseOffset), zap.Int64("truncatedAt", scanPos))
				fileSize = scanPos
				break
			}
			s.close()
			return nil, rerr
		}

		var rec flashq.RecordWithOffset
		if jerr := json.Unmarshal(payload, &rec); jerr != nil {
			s.close()
			return nil, flashq.FromSerializationError(jerr, fmt.Sprintf("recovering segment %d", baseOffset))
		}

		relOffset := uint32(header.absoluteOffset - baseOffset)
		if err := s.offsetIdx.write(relOffset, uint32(scanPos)); err != nil {
			s.close()
			return nil, err
		}
		s.lastIndexedPos = scanPos
		if ts, terr := timestampToMillis(rec.Timestamp); terr == nil {
			if s.timeIdx.entryCount() == 0 || ts > s.lastIndexedTsMs {
				if err := s.timeIdx.write(uint64(ts), relOffset); err != nil {
					s.close()
					return nil, err
				}
			}
			s.lastIndexedTsMs = ts
		}

		s.hasMaxOffset = true
		s.maxOffset = header.absoluteOffset
		scanPos += frameLen
	}

	s.writePos = scanPos
	return s, nil
}

type frameHeader struct {
	absoluteOffset uint64
	payloadLen     uint32
}

// readFrameAt reads and decodes the frame at pos, returning its
// header, its raw JSON payload, and the frame's total byte length.
// frameLen is always returned (even on error) so callers can tell a
// too-short tail from a genuine decode failure.
func (s *segment) readFrameAt(pos int64) (frameHeader, []byte, int64, error) {
	var hbuf [frameHeaderWidth]byte
	if err := s.data.readAt(hbuf[:], pos); err != nil {
		return frameHeader{}, nil, frameHeaderWidth, err
	}
	h := frameHeader{
		absoluteOffset: binary.BigEndian.Uint64(hbuf[0:8]),
		payloadLen:     binary.BigEndian.Uint32(hbuf[8:12]),
	}
	frameLen := frameHeaderWidth + int64(h.payloadLen)
	payload := make([]byte, h.payloadLen)
	if err := s.data.readAt(payload, pos+frameHeaderWidth); err != nil {
		return h, nil, frameLen, err
	}
	return h, payload, frameLen, nil
}

func encodeFrame(offset uint64, rec flashq.RecordWithOffset) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, flashq.FromSerializationError(err, "encoding record frame")
	}
	frame := make([]byte, frameHeaderWidth+len(payload))
	binary.BigEndian.PutUint64(frame[0:8], offset)
	binary.BigEndian.PutUint32(frame[8:12], uint32(len(payload)))
	copy(frame[frameHeaderWidth:], payload)
	return frame, nil
}

// shouldIndex reports whether the next write at pos is far enough past
// the last indexed position to earn a new sparse offset-index entry.
func (s *segment) shouldIndex(pos int64) bool {
	return s.lastIndexedPos < 0 || pos-s.lastIndexedPos > int64(s.indexCfg.IndexIntervalBytes)
}

// appendRecord appends a single record at offset with timestamp ts,
// emitting index entries per spec.md §4.2's sparse-indexing rule, and
// fsyncing immediately when syncMode demands it.
func (s *segment) appendRecord(offset uint64, ts string, record flashq.Record) error {
	rec := flashq.RecordWithOffset{Offset: offset, Timestamp: ts, Record: record}
	frame, err := encodeFrame(offset, rec)
	if err != nil {
		return err
	}

	pos, err := s.data.appendAt(frame)
	if err != nil {
		return err
	}

	relOffset := uint32(offset - s.baseOffset)
	if s.shouldIndex(pos) {
		if err := s.offsetIdx.write(relOffset, uint32(pos)); err != nil {
			return err
		}
		s.lastIndexedPos = pos
	}

	if tsMs, terr := timestampToMillis(ts); terr == nil {
		if s.timeIdx.entryCount() == 0 || tsMs > s.lastIndexedTsMs {
			if err := s.timeIdx.write(uint64(tsMs), relOffset); err != nil {
				return err
			}
			s.lastIndexedTsMs = tsMs
		}
	}

	s.writePos = pos + int64(len(frame))
	s.hasMaxOffset = true
	s.maxOffset = offset

	return s.maybeSync()
}

// appendRecordsBulk appends records as a single concatenated write
// sharing one timestamp, starting at startOffset, returning the last
// assigned absolute offset.
func (s *segment) appendRecordsBulk(startOffset uint64, ts string, records []flashq.Record) (uint64, error) {
	var buf []byte
	offsets := make([]uint64, len(records))
	for i, r := range records {
		offset := startOffset + uint64(i)
		offsets[i] = offset
		frame, err := encodeFrame(offset, flashq.RecordWithOffset{Offset: offset, Timestamp: ts, Record: r})
		if err != nil {
			return 0, err
		}
		buf = append(buf, frame...)
	}

	basePos, err := s.data.appendAt(buf)
	if err != nil {
		return 0, err
	}

	tsMs, terr := timestampToMillis(ts)
	pos := basePos
	for i, offset := range offsets {
		relOffset := uint32(offset - s.baseOffset)
		if s.shouldIndex(pos) {
			if err := s.offsetIdx.write(relOffset, uint32(pos)); err != nil {
				return 0, err
			}
			s.lastIndexedPos = pos
		}
		if i == 0 && terr == nil && (s.timeIdx.entryCount() == 0 || tsMs > s.lastIndexedTsMs) {
			if err := s.timeIdx.write(uint64(tsMs), relOffset); err != nil {
				return 0, err
			}
			s.lastIndexedTsMs = tsMs
		}
		pos += frameHeaderWidth + int64(lenOfPayloadAt(buf, pos-basePos))
	}

	s.writePos = basePos + int64(len(buf))
	s.hasMaxOffset = true
	s.maxOffset = offsets[len(offsets)-1]

	return s.maxOffset, s.maybeSync()
}

// lenOfPayloadAt reads the payload length out of a frame header
// embedded at relPos within an in-memory buffer already written to
// disk, avoiding a redundant disk read while walking appendRecordsBulk's
// freshly written frames.
func lenOfPayloadAt(buf []byte, relPos int64) uint32 {
	return binary.BigEndian.Uint32(buf[relPos+8 : relPos+12])
}

func (s *segment) maybeSync() error {
	if s.syncMode != flashq.SyncImmediate {
		return nil
	}
	if err := s.data.sync(); err != nil {
		return err
	}
	s.offsetIdx.table.syncOpportunistic()
	s.timeIdx.table.syncOpportunistic()
	return nil
}

// sync flushes the data file and opportunistically syncs both index
// files. It is called only through segmentManager.sync from
// TopicLog.Sync; appends under SyncMode::Periodic do not call it.
func (s *segment) sync() error {
	if err := s.data.sync(); err != nil {
		return err
	}
	s.offsetIdx.table.syncOpportunistic()
	s.timeIdx.table.syncOpportunistic()
	return nil
}

// maxTimestampMs returns the highest timestamp indexed for this
// segment, used by segmentManager.scanFromTimestamp's binary search
// over segments. Every strictly increasing timestamp gets an entry (see
// appendRecord/appendRecordsBulk), so the time index's last entry always
// equals the segment's true maximum timestamp.
func (s *segment) maxTimestampMs() (int64, bool) {
	ts, ok := s.timeIdx.lastTimestamp()
	return int64(ts), ok
}

func (s *segment) isEmpty() bool { return !s.hasMaxOffset }

func (s *segment) nextOffset() uint64 {
	if !s.hasMaxOffset {
		return s.baseOffset
	}
	return s.maxOffset + 1
}

func (s *segment) recordCount() uint64 {
	if !s.hasMaxOffset {
		return 0
	}
	return s.maxOffset - s.baseOffset + 1
}

// readRecordAt decodes the single record at absolute offset.
func (s *segment) readRecordAt(offset uint64) (flashq.RecordWithOffset, error) {
	if !s.hasMaxOffset || offset < s.baseOffset || offset > s.maxOffset {
		return flashq.RecordWithOffset{}, flashq.DataCorruptionError(
			fmt.Sprintf("segment %d", s.baseOffset), "offset out of range")
	}

	relOffset := uint32(offset - s.baseOffset)
	pos := int64(0)
	if _, filePos, ok := s.offsetIdx.findFloor(relOffset); ok {
		pos = int64(filePos)
	}

	for pos < s.writePos {
		header, payload, frameLen, err := s.readFrameAt(pos)
		if err != nil {
			return flashq.RecordWithOffset{}, err
		}
		if header.absoluteOffset == offset {
			var rec flashq.RecordWithOffset
			if err := json.Unmarshal(payload, &rec); err != nil {
				return flashq.RecordWithOffset{}, flashq.FromSerializationError(err, "decoding record")
			}
			return rec, nil
		}
		pos += frameLen
	}

	return flashq.RecordWithOffset{}, flashq.DataCorruptionError(
		fmt.Sprintf("segment %d", s.baseOffset), "offset index pointed past a missing record")
}

// scan reads up to maxCount records (or until maxBytes of payload has
// been accumulated) starting at the first offset >= fromOffset.
func (s *segment) scan(fromOffset uint64, maxCount int, maxBytes int) ([]flashq.RecordWithOffset, error) {
	if !s.hasMaxOffset || fromOffset > s.maxOffset {
		return nil, nil
	}

	startRel := uint32(0)
	if fromOffset > s.baseOffset {
		startRel = uint32(fromOffset - s.baseOffset)
	}
	pos := int64(0)
	if _, filePos, ok := s.offsetIdx.findFloor(startRel); ok {
		pos = int64(filePos)
	}

	var out []flashq.RecordWithOffset
	bytesRead := 0
	for pos < s.writePos {
		header, payload, frameLen, err := s.readFrameAt(pos)
		if err != nil {
			return nil, err
		}
		pos += frameLen
		if header.absoluteOffset < fromOffset {
			continue
		}
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
		if maxBytes > 0 && bytesRead+len(payload) > maxBytes && len(out) > 0 {
			break
		}
		var rec flashq.RecordWithOffset
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, flashq.FromSerializationError(err, "decoding record")
		}
		out = append(out, rec)
		bytesRead += len(payload)
	}
	return out, nil
}

// seekByTimestamp returns the absolute offset of the first record in
// this segment with a timestamp >= tsMs, and ok=false if every record
// in the segment predates tsMs.
func (s *segment) seekByTimestamp(tsMs int64, seekBackBytes int64) (uint64, bool, error) {
	if !s.hasMaxOffset {
		return 0, false, nil
	}

	pos := int64(0)
	if _, relOffset, ok := s.timeIdx.findFloor(uint64(tsMs)); ok {
		if _, filePos, ok2 := s.offsetIdx.findFloor(relOffset); ok2 {
			// offset-index positions are frame starts, but a position
			// seekBackBytes earlier is not: rescan from the start of the
			// file when filePos lies within seekBackBytes, else from filePos.
			pos = int64(filePos)
			if pos <= seekBackBytes {
				pos = 0
			}
		}
	}

	for pos < s.writePos {
		header, payload, frameLen, err := s.readFrameAt(pos)
		if err != nil {
			return 0, false, err
		}
		var rec flashq.RecordWithOffset
		if err := json.Unmarshal(payload, &rec); err != nil {
			return 0, false, flashq.FromSerializationError(err, "decoding record")
		}
		recTsMs, terr := timestampToMillis(rec.Timestamp)
		if terr == nil && recTsMs >= tsMs {
			return header.absoluteOffset, true, nil
		}
		pos += frameLen
	}
	return 0, false, nil
}

func (s *segment) close() error {
	var firstErr error
	if err := s.data.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.offsetIdx.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.timeIdx.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *segment) sizeBytes() int64 { return s.writePos }
