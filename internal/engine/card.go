package engine

type Category string

const (
	CategoryHero      Category = "hero"
	CategoryAction    Category = "action"
	CategoryEquipment Category = "equipment"
)

type Speed string

const (
	SpeedInstant Speed = "instant"
	SpeedNormal  Speed = "normal"
	SpeedSlow    Speed = "slow"
)

type EffectKind string

const (
	EffectDamage       EffectKind = "damage"
	EffectDamageRandom EffectKind = "damage_random"
	EffectHeal         EffectKind = "heal"
	EffectGainEnergy   EffectKind = "gain_energy"
	EffectGainMana     EffectKind = "gain_mana"
	EffectDraw         EffectKind = "draw"
	EffectShield       EffectKind = "shield"
)

type Target string

const (
	TargetSelf     Target = "self"
	TargetOpponent Target = "opponent"
)

type Cost struct {
	Energy int           `yaml:"energy" json:"energy"`
	Mana   map[Color]int `yaml:"mana" json:"mana,omitempty"`
}

type Effect struct {
	Kind   EffectKind `yaml:"kind" json:"kind"`
	Amount int        `yaml:"amount" json:"amount,omitempty"`
	Min    int        `yaml:"min" json:"min,omitempty"`
	Max    int        `yaml:"max" json:"max,omitempty"`
	Color  Color      `yaml:"color" json:"color,omitempty"`
	Target Target     `yaml:"target" json:"target,omitempty"`
}

// Card is an immutable card definition. BaseEnergy only applies to heroes;
// Attack is the hero's attack or the bonus an equipment grants.
type Card struct {
	Ref        string   `yaml:"ref" json:"ref"`
	Name       string   `yaml:"name" json:"name"`
	Category   Category `yaml:"category" json:"category"`
	Color      Color    `yaml:"color" json:"color"`
	Cost       Cost     `yaml:"cost" json:"cost"`
	Speed      Speed    `yaml:"speed" json:"speed,omitempty"`
	BaseEnergy int      `yaml:"base_energy" json:"base_energy,omitempty"`
	Attack     int      `yaml:"attack" json:"attack,omitempty"`
	Effects    []Effect `yaml:"effects" json:"effects,omitempty"`
}

// CardLookup resolves card refs to definitions.
type CardLookup interface {
	Card(ref string) (Card, bool)
}
