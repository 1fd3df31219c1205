package auction

import "time"

// ApplyBid returns a copy of auctions in which the auction with the given id
// carries the new current bid and bid count. The second result is false when
// no auction matched, in which case the input slice is returned unchanged.
func ApplyBid(auctions []Auction, id string, currentBid float64, bidCount int) ([]Auction, bool) {
	i := indexOf(auctions, id)
	if i < 0 {
		return auctions, false
	}
	out := clone(auctions)
	out[i].CurrentPrice = currentBid
	out[i].BidCount = bidCount
	return out, true
}

// ApplySold returns a copy of auctions in which the auction with the given id
// is marked sold: persisted status and car status become SOLD and the end
// time is stamped with at.
func ApplySold(auctions []Auction, id string, at time.Time) ([]Auction, bool) {
	i := indexOf(auctions, id)
	if i < 0 {
		return auctions, false
	}
	out := clone(auctions)
	out[i].Status = FlagSold
	out[i].EndTime = At(at)
	out[i].Car.Status = FlagSold
	return out, true
}

func indexOf(auctions []Auction, id string) int {
	for i := range auctions {
		if auctions[i].ID == id {
			return i
		}
	}
	return -1
}

func clone(auctions []Auction) []Auction {
	out := make([]Auction, len(auctions))
	copy(out, auctions)
	return out
}
