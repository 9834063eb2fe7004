package buildconfig

// AssetDisposition says how a file matched by a rule ends up in the output.
type AssetDisposition int

const (
	// Emit writes the file as a standalone hashed asset.
	Emit AssetDisposition = iota
	// Inline embeds the file in the referencing bundle as a data URL.
	Inline
)

func (d AssetDisposition) String() string {
	if d == Inline {
		return "inline"
	}
	return "emit"
}

// Classify decides the disposition of a file of the given size. Files up to and
// including InlineLimit bytes are inlined.
func (r *TransformRule) Classify(size int64) AssetDisposition {
	if r.InlineLimit > 0 && size <= r.InlineLimit {
		return Inline
	}
	return Emit
}

// ClassifyAsset applies the image rule threshold to a file size.
func ClassifyAsset(size int64) AssetDisposition {
	if size <= ImageInlineLimit {
		return Inline
	}
	return Emit
}
