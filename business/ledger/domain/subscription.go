package domain

// SubHandle identifies one registered subscription for unsubscribe.
type SubHandle uint64

// BlockCallback receives every new block summary.
type BlockCallback func(BlockSummary)

// AddressCallback receives transactions touching a watched address.
type AddressCallback func(AddressEvent)
