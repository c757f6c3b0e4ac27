package ndn

// ContentType enumerates the kind of content carried by a Data packet
// (spec §3).
type ContentType uint8

const (
	ContentTypeBlob ContentType = iota
	ContentTypeLink
	ContentTypeKey
	ContentTypeCert
	ContentTypeManifest
	ContentTypePrefixAnn
	// ContentTypeCustomBase and above are carried as Custom(u8); the codec
	// round-trips any value >= this base unchanged.
	ContentTypeCustomBase ContentType = 0x80
)

// Data is an NDN response packet bound to a Name (spec §3).
type Data struct {
	Name             Name
	ContentType      ContentType
	Content          []byte
	FreshnessMs      uint32
	SignatureInfo    []byte
	SignatureValue   []byte
}

// NewData builds a Data packet with ContentTypeBlob and no freshness.
func NewData(name Name, content []byte) *Data {
	return &Data{Name: name, ContentType: ContentTypeBlob, Content: content}
}
