package hermes

// PriceUpdate is the payload returned by the Hermes v2 price update endpoints.
type PriceUpdate struct {
	Binary BinaryUpdate      `json:"binary"` // Signed attestation(s) consumed on-chain
	Parsed []ParsedPriceFeed `json:"parsed"` // Decoded view of the same attestation(s)
}

// BinaryUpdate holds encoded price attestations.
type BinaryUpdate struct {
	Encoding string   `json:"encoding"` // "hex" or "base64"
	Data     []string `json:"data"`
}

// ParsedPriceFeed is one feed inside a PriceUpdate.
type ParsedPriceFeed struct {
	ID       string        `json:"id"`
	Price    Price         `json:"price"`
	EMAPrice Price         `json:"ema_price"`
	Metadata *FeedMetadata `json:"metadata,omitempty"`
}

// Price is a fixed-point price: Price * 10^Expo.
type Price struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int    `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type FeedMetadata struct {
	Slot               int64 `json:"slot"`
	ProofAvailableTime int64 `json:"proof_available_time"`
	PrevPublishTime    int64 `json:"prev_publish_time"`
}

// StreamMessage is a frame received on the Hermes WebSocket.
type StreamMessage struct {
	Type      string           `json:"type"`   // "response" or "price_update"
	Status    string           `json:"status"` // set on "response"
	Error     string           `json:"error"`
	PriceFeed *StreamPriceFeed `json:"price_feed"`
}

// StreamPriceFeed is the price payload pushed on the WebSocket.
type StreamPriceFeed struct {
	ID       string `json:"id"`
	Price    Price  `json:"price"`
	EMAPrice Price  `json:"ema_price"`
}

// subscribeRequest is sent once per connection.
type subscribeRequest struct {
	Type    string   `json:"type"`
	IDs     []string `json:"ids"`
	Verbose bool     `json:"verbose"`
	Binary  bool     `json:"binary"`
}
