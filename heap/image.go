package heap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/heapkit/heapkit/internal/buf"
	"github.com/heapkit/heapkit/internal/format"
	"github.com/heapkit/heapkit/internal/mmfile"
)

// ErrBadImage indicates a dump file that is not a valid heap image.
var ErrBadImage = errors.New("heap: bad dump image")

// Open maps the heap dump image at path and builds a heap over its
// regions. Image-backed heaps are offline snapshots: regions carry no
// locks, and the image's ownership flag overrides
// opts.ExtendedDiagnostics. Close releases the mapping.
func Open(path string, opts Options) (*Heap, error) {
	data, cleanup, err := mmfile.Map(path)
	if err != nil {
		return nil, err
	}
	h, err := FromImage(data, opts)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	h.cleanup = cleanup
	return h, nil
}

// FromImage builds a heap over an in-memory dump image. The regions alias
// data; the caller keeps it alive and unmodified for the heap's lifetime.
func FromImage(data []byte, opts Options) (*Heap, error) {
	regions, flags, err := parseImage(data)
	if err != nil {
		return nil, err
	}
	opts.ExtendedDiagnostics = flags&format.ImageFlagOwnership != 0
	return New(opts, regions...)
}

func parseImage(data []byte) ([]Region, uint32, error) {
	if len(data) < format.ImageHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes, need %d for header", ErrBadImage, len(data), format.ImageHeaderSize)
	}
	if !bytes.Equal(data[:4], format.ImageSignature) {
		return nil, 0, fmt.Errorf("%w: signature %q", ErrBadImage, data[:4])
	}
	version, _ := buf.U32LEAt(data, format.ImageVersionOffset)
	if version != format.ImageVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrBadImage, version)
	}
	nregions, _ := buf.U32LEAt(data, format.ImageRegionCountOffset)
	flags, _ := buf.U32LEAt(data, format.ImageFlagsOffset)
	if nregions == 0 {
		return nil, 0, fmt.Errorf("%w: zero regions", ErrBadImage)
	}

	tableEnd, ok := buf.AddOverflowSafe(format.ImageHeaderSize, int(nregions)*format.ImageRegionEntrySize)
	if !ok || tableEnd > len(data) {
		return nil, 0, fmt.Errorf("%w: region table truncated", ErrBadImage)
	}

	regions := make([]Region, 0, nregions)
	pos := tableEnd
	for i := 0; i < int(nregions); i++ {
		entry := format.ImageHeaderSize + i*format.ImageRegionEntrySize
		base, _ := buf.U32LEAt(data, entry+format.ImageEntryBaseOffset)
		length, _ := buf.U32LEAt(data, entry+format.ImageEntryLengthOffset)
		start, _ := buf.U32LEAt(data, entry+format.ImageEntryStartOffset)
		end, _ := buf.U32LEAt(data, entry+format.ImageEntryEndOffset)

		regionData, ok := buf.Slice(data, pos, int(length))
		if !ok {
			return nil, 0, fmt.Errorf("%w: region %d data truncated", ErrBadImage, i)
		}
		regions = append(regions, Region{
			Base:  base,
			Data:  regionData,
			Start: int(start),
			End:   int(end),
		})
		pos += int(length)
	}
	return regions, flags, nil
}

// EncodeImage serializes regions into the dump image container, the
// inverse of FromImage. Ownership of the extended header layout is
// recorded in the image flags so readers resolve the right geometry.
func EncodeImage(ownership bool, regions []Region) []byte {
	var flags uint32
	if ownership {
		flags = format.ImageFlagOwnership
	}
	size := format.ImageHeaderSize + len(regions)*format.ImageRegionEntrySize
	for _, r := range regions {
		size += len(r.Data)
	}
	out := make([]byte, format.ImageHeaderSize, size)
	copy(out, format.ImageSignature)
	buf.PutU32LEAt(out, format.ImageVersionOffset, format.ImageVersion)
	buf.PutU32LEAt(out, format.ImageRegionCountOffset, uint32(len(regions)))
	buf.PutU32LEAt(out, format.ImageFlagsOffset, flags)

	entry := make([]byte, format.ImageRegionEntrySize)
	for _, r := range regions {
		buf.PutU32LEAt(entry, format.ImageEntryBaseOffset, r.Base)
		buf.PutU32LEAt(entry, format.ImageEntryLengthOffset, uint32(len(r.Data)))
		buf.PutU32LEAt(entry, format.ImageEntryStartOffset, uint32(r.Start))
		buf.PutU32LEAt(entry, format.ImageEntryEndOffset, uint32(r.End))
		out = append(out, entry...)
	}
	for _, r := range regions {
		out = append(out, r.Data...)
	}
	return out
}
