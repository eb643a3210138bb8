package domain

import (
	"errors"

	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
)

type Engine interface {
	Rules(ruleSet RuleSet) (Rules, error)
	Price(delta consumptiondomain.Counters, rules Rules) Amount
	UnitPrices(bwQuantity int64, rules Rules) UnitPrices
}

var ErrInvalidRuleSet = errors.New("invalid_rule_set")
