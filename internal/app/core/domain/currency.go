package domain

import (
	"fmt"
	"strings"
)

// Currency 帳戶幣別，封閉集合
// 為了節省記憶體，使用 uint8
type Currency uint8

const (
	CurrencyRUB Currency = iota + 1
	CurrencyUSD
	CurrencyEUR
)

var currencyCodes = map[Currency]string{
	CurrencyRUB: "RUB",
	CurrencyUSD: "USD",
	CurrencyEUR: "EUR",
}

// Currencies 回傳所有支援的幣別 (開戶順序)
func Currencies() []Currency {
	return []Currency{CurrencyRUB, CurrencyUSD, CurrencyEUR}
}

// ParseCurrency 由幣別代碼 (不分大小寫) 取得 Currency
func ParseCurrency(code string) (Currency, error) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	for c, name := range currencyCodes {
		if name == upper {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
}

// Valid 是否為支援的幣別
func (c Currency) Valid() bool {
	_, ok := currencyCodes[c]
	return ok
}

func (c Currency) String() string {
	if name, ok := currencyCodes[c]; ok {
		return name
	}
	return fmt.Sprintf("Currency(%d)", uint8(c))
}

// MarshalText 以幣別代碼序列化 (JSON / YAML / WAL 共用)
func (c Currency) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCurrency, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText 由幣別代碼還原
func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
