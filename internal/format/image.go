package format

// ImageSignature is the four-byte signature at the start of every heap dump
// image. Layout (little-endian):
//
//	0x00  'h' 'd' 'm' 'p'
var ImageSignature = []byte{'h', 'd', 'm', 'p'}

const (
	// ImageVersion is the current dump image container version.
	ImageVersion = 1

	// ImageHeaderSize is the fixed image header:
	//
	//	0x00  4  signature
	//	0x04  4  version
	//	0x08  4  region count
	//	0x0C  4  flags
	ImageHeaderSize = 16

	// ImageRegionEntrySize is one region-table entry, following the header:
	//
	//	0x00  4  load base address of the region
	//	0x04  4  byte length of the region data
	//	0x08  4  offset of the first node within the region data
	//	0x0C  4  offset of the end sentinel within the region data
	ImageRegionEntrySize = 16

	// ImageFlagOwnership marks an image whose nodes carry extended
	// ownership headers (owner id + allocation PC).
	ImageFlagOwnership = 0x1
)

// Image header field offsets.
const (
	ImageVersionOffset     = 4
	ImageRegionCountOffset = 8
	ImageFlagsOffset       = 12
)

// Region-table entry field offsets, relative to the entry start.
const (
	ImageEntryBaseOffset   = 0
	ImageEntryLengthOffset = 4
	ImageEntryStartOffset  = 8
	ImageEntryEndOffset    = 12
)
