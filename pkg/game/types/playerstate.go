package types

// PlayerState is the per-player part of a game's simulation state.
// Rules decide which fields are meaningful for a given game.
type PlayerState struct {
	Score      int            `json:"score"`
	Actions    int            `json:"actions"`
	Attributes map[string]int `json:"attributes,omitempty"`
}

// NewPlayerState returns the default state of a freshly matched player.
func NewPlayerState() *PlayerState {
	return &PlayerState{}
}

// Equal returns true if the player state is equal to the other player state
func (p *PlayerState) Equal(other *PlayerState) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Score != other.Score || p.Actions != other.Actions {
		return false
	}
	if len(p.Attributes) != len(other.Attributes) {
		return false
	}
	for k, v := range p.Attributes {
		if ov, ok := other.Attributes[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of the player state
func (p *PlayerState) Copy() *PlayerState {
	if p == nil {
		return nil
	}
	c := &PlayerState{
		Score:   p.Score,
		Actions: p.Actions,
	}
	if p.Attributes != nil {
		c.Attributes = make(map[string]int, len(p.Attributes))
		for k, v := range p.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}
