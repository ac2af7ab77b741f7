package cards

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/nexuscards/battle/internal/engine"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

type file struct {
	Cards       []engine.Card `yaml:"cards"`
	StarterDeck []string      `yaml:"starter_deck"`
}

// Catalog serves card definitions exported from the content service and
// hands out starter decks. It is read-only after Load.
type Catalog struct {
	cards       map[string]engine.Card
	starterDeck []string
}

// Load reads the catalog export at path, or the embedded default when path
// is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read card catalog: %w", err)
		}
		data = raw
	}

	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	log.Info().Int("cards", len(c.cards)).Str("path", path).Msg("[CARDS] Catalog loaded")
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse card catalog: %w", err)
	}

	c := &Catalog{cards: make(map[string]engine.Card, len(f.Cards))}
	for _, card := range f.Cards {
		if err := validate(card); err != nil {
			return nil, err
		}
		if _, dup := c.cards[card.Ref]; dup {
			return nil, fmt.Errorf("card %s defined twice", card.Ref)
		}
		c.cards[card.Ref] = card
	}
	for _, ref := range f.StarterDeck {
		if _, ok := c.cards[ref]; !ok {
			return nil, fmt.Errorf("starter deck references unknown card %s", ref)
		}
	}
	c.starterDeck = f.StarterDeck
	return c, nil
}

func validate(card engine.Card) error {
	if card.Ref == "" {
		return fmt.Errorf("card without ref")
	}
	switch card.Category {
	case engine.CategoryHero, engine.CategoryEquipment:
	case engine.CategoryAction:
		switch card.Speed {
		case engine.SpeedInstant, engine.SpeedNormal, engine.SpeedSlow:
		default:
			return fmt.Errorf("card %s: action needs a speed, got %q", card.Ref, card.Speed)
		}
	default:
		return fmt.Errorf("card %s: unknown category %q", card.Ref, card.Category)
	}
	if card.Cost.Energy < 0 {
		return fmt.Errorf("card %s: negative energy cost", card.Ref)
	}
	for color, n := range card.Cost.Mana {
		if n < 0 {
			return fmt.Errorf("card %s: negative %s mana cost", card.Ref, color)
		}
	}
	for _, eff := range card.Effects {
		switch eff.Kind {
		case engine.EffectDamageRandom:
			if eff.Min < 0 || eff.Max < eff.Min {
				return fmt.Errorf("card %s: bad random range %d..%d", card.Ref, eff.Min, eff.Max)
			}
		case engine.EffectGainMana:
			if eff.Color == "" {
				return fmt.Errorf("card %s: gain_mana without color", card.Ref)
			}
		case engine.EffectDamage, engine.EffectHeal, engine.EffectGainEnergy, engine.EffectDraw, engine.EffectShield:
			if eff.Amount < 0 {
				return fmt.Errorf("card %s: negative %s amount", card.Ref, eff.Kind)
			}
		default:
			return fmt.Errorf("card %s: unknown effect %q", card.Ref, eff.Kind)
		}
	}
	return nil
}

// Card implements engine.CardLookup.
func (c *Catalog) Card(ref string) (engine.Card, bool) {
	card, ok := c.cards[ref]
	return card, ok
}

func (c *Catalog) Len() int {
	return len(c.cards)
}

// Deck returns the deck a player brings into a match. Until collections
// are synced from the marketplace every player gets the starter deck.
func (c *Catalog) Deck(_ context.Context, _ string) ([]string, error) {
	if len(c.starterDeck) == 0 {
		return nil, fmt.Errorf("catalog has no starter deck")
	}
	deck := make([]string, len(c.starterDeck))
	copy(deck, c.starterDeck)
	return deck, nil
}
