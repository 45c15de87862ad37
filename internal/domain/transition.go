package domain

// Transition rules. Each validator is pure: it inspects the offer and the
// would-be action and returns nil or a typed rejection. The store applies
// the mutation only after these pass, and revalidates the revision
// precondition on write, so both independent writers enforce the same
// rules without a central arbiter.

// ValidateAccept permits acceptance only by the party who did not make
// the last price move: the seller on a pending offer, the buyer on a
// countered one.
func (o *Offer) ValidateAccept(actorID string) error {
	if !o.IsParty(actorID) {
		return &AuthorizationError{ActorID: actorID, RecordID: o.ID}
	}
	if o.Status == OfferPending && actorID == o.SellerID {
		return nil
	}
	if o.Status == OfferCountered && actorID == o.BuyerID {
		return nil
	}
	return &StateError{Op: "accept", Status: o.Status}
}

// ValidateCounter checks both the state and the direction of the price
// move: sellers must move up from the current price (never above the
// original), buyers must move down (never to zero or below).
func (o *Offer) ValidateCounter(actorID string, price float64) error {
	if !o.IsParty(actorID) {
		return &AuthorizationError{ActorID: actorID, RecordID: o.ID}
	}
	if o.Status != OfferPending && o.Status != OfferCountered {
		return &StateError{Op: "counter", Status: o.Status}
	}
	if actorID == o.SellerID {
		if price <= o.CurrentPrice {
			return &ValidationError{Field: "price", Reason: "seller counter must exceed the current price"}
		}
		if price > o.OriginalPrice {
			return &ValidationError{Field: "price", Reason: "counter cannot exceed the listing price"}
		}
		return nil
	}
	if price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if price >= o.CurrentPrice {
		return &ValidationError{Field: "price", Reason: "buyer counter must be below the current price"}
	}
	return nil
}

// ValidateDecline: either party, from any non-terminal state.
func (o *Offer) ValidateDecline(actorID string) error {
	if !o.IsParty(actorID) {
		return &AuthorizationError{ActorID: actorID, RecordID: o.ID}
	}
	if o.Status != OfferPending && o.Status != OfferCountered {
		return &StateError{Op: "decline", Status: o.Status}
	}
	return nil
}

// ValidateCancel restricts withdrawal to the party whose move is pending:
// the buyer on their own pending offer, the seller on their own counter.
func (o *Offer) ValidateCancel(actorID string) error {
	if !o.IsParty(actorID) {
		return &AuthorizationError{ActorID: actorID, RecordID: o.ID}
	}
	if o.Status == OfferPending && actorID == o.BuyerID {
		return nil
	}
	if o.Status == OfferCountered && actorID == o.SellerID {
		return nil
	}
	return &StateError{Op: "cancel", Status: o.Status}
}

// ValidateThreadMessage gates free-form messages on the offer thread.
func (o *Offer) ValidateThreadMessage(actorID string) error {
	if !o.IsParty(actorID) {
		return &AuthorizationError{ActorID: actorID, RecordID: o.ID}
	}
	if !o.IsActive {
		return &StateError{Op: "message", Status: o.Status}
	}
	return nil
}
