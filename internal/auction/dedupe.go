package auction

// Dedupe returns auctions with every repeated id removed, keeping the first
// occurrence and the original order. The ids of discarded entries are
// returned so the caller can report them.
func Dedupe(auctions []Auction) ([]Auction, []string) {
	seen := make(map[string]struct{}, len(auctions))
	out := make([]Auction, 0, len(auctions))
	var dups []string
	for _, a := range auctions {
		if _, ok := seen[a.ID]; ok {
			dups = append(dups, a.ID)
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out, dups
}
