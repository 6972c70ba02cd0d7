package models

// Built-in decks. Order matters for display; validation is by membership.
var (
	deckFibonacci = []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "∞", "☕"}
	deckTShirt    = []string{"XS", "S", "M", "L", "XL", "XXL", "?", "☕"}
	deckPowersOf2 = []string{"1", "2", "4", "8", "16", "32", "64", "?", "☕"}
)

// Deck returns the ordered card values allowed by the config's deck type.
// For DeckCustom the configured CustomDeck is returned as-is.
func (c RoomConfig) Deck() []string {
	switch c.DeckType {
	case DeckTShirt:
		return deckTShirt
	case DeckPowersOf2:
		return deckPowersOf2
	case DeckCustom:
		return c.CustomDeck
	default:
		return deckFibonacci
	}
}

// DeckContains reports whether the card value is a member of the room's deck.
func (c RoomConfig) DeckContains(cardValue string) bool {
	for _, v := range c.Deck() {
		if v == cardValue {
			return true
		}
	}
	return false
}
