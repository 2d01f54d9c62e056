package bluesky

import (
	"regexp"
	"strings"
)

// BlobRef represents an AT Protocol blob reference for uploaded content.
type BlobRef struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type replyRef struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

type embedImage struct {
	Alt   string  `json:"alt"`
	Image BlobRef `json:"image"`
}

type imagesEmbed struct {
	Type   string       `json:"$type"`
	Images []embedImage `json:"images"`
}

type facetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

type facet struct {
	Index    facetIndex     `json:"index"`
	Features []facetFeature `json:"features"`
}

type postRecord struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Langs     []string     `json:"langs,omitempty"`
	Facets    []facet      `json:"facets,omitempty"`
	Reply     *replyRef    `json:"reply,omitempty"`
	Embed     *imagesEmbed `json:"embed,omitempty"`
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type getRecordResponse struct {
	URI   string `json:"uri"`
	CID   string `json:"cid"`
	Value struct {
		Reply *replyRef `json:"reply,omitempty"`
	} `json:"value"`
}

type uploadBlobResponse struct {
	Blob BlobRef `json:"blob"`
}

type xrpcErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// detectLinkFacets marks bare URLs so they render as links. Offsets are UTF-8
// byte positions.
func detectLinkFacets(text string) []facet {
	var facets []facet
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		uri := strings.TrimRight(text[start:end], ".,;:!?)")
		end = start + len(uri)
		facets = append(facets, facet{
			Index:    facetIndex{ByteStart: start, ByteEnd: end},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#link", URI: uri}},
		})
	}
	return facets
}
