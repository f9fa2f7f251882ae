package lookup

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// The provider's response shape drifted over time; field names show up in
// several casings and languages depending on the module queried. Aliases
// are tried in priority order and the first non-empty value wins.
var (
	basicSectionAliases    = []string{"dadosBasicos", "DadosBasicos", "dados_basicos", "basicData", "basic_data"}
	economicSectionAliases = []string{"dadosEconomicos", "DadosEconomicos", "dados_economicos", "economicData", "economic_data"}

	nameAliases   = []string{"nome", "Nome", "NOME", "name", "Name"}
	birthAliases  = []string{"nascimento", "Nascimento", "dataNascimento", "DataNascimento", "data_nascimento", "birthDate", "birth_date"}
	incomeAliases = []string{"renda", "Renda", "rendaMensal", "RendaMensal", "renda_mensal", "income"}
	scoreAliases  = []string{"score", "Score", "SCORE"}
	phoneAliases  = []string{"telefones", "Telefones", "celulares", "Celulares", "phones", "telefone", "Telefone"}

	statusAliases = []string{"status", "Status", "codigo", "Codigo"}
)

// applicationStatus extracts the provider's own status code from the body.
func applicationStatus(raw map[string]any) (int, bool) {
	for _, key := range statusAliases {
		switch v := raw[key].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// parseResult builds a Result from a successful response body. Sections
// are searched root-first so flat responses keep working.
func parseResult(cpf string, raw map[string]any) *Result {
	sections := []map[string]any{raw}
	for _, key := range append(basicSectionAliases, economicSectionAliases...) {
		if m, ok := raw[key].(map[string]any); ok {
			sections = append(sections, m)
		}
	}

	res := &Result{CPF: cpf}

	if name := firstString(sections, nameAliases); name != "" {
		res.Name = normalizeName(name)
	}
	if birth := firstString(sections, birthAliases); birth != "" {
		res.BirthDate = normalizeBirthDate(birth)
	}
	if income := firstString(sections, incomeAliases); income != "" {
		if d, ok := parseIncome(income); ok {
			res.Income = &d
		}
	}
	if score, ok := firstInt(sections, scoreAliases); ok {
		res.Score = &score
	}
	res.Phones = firstPhones(sections, phoneAliases)

	return res
}

func firstString(sections []map[string]any, aliases []string) string {
	for _, key := range aliases {
		for _, m := range sections {
			switch v := m[key].(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstInt(sections []map[string]any, aliases []string) (int, bool) {
	for _, key := range aliases {
		for _, m := range sections {
			switch v := m[key].(type) {
			case float64:
				return int(v), true
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// firstPhones accepts either an array of strings, an array of objects with
// a number field, or a single comma-separated string.
func firstPhones(sections []map[string]any, aliases []string) []string {
	numberAliases := []string{"numero", "Numero", "number", "telefone"}

	for _, key := range aliases {
		for _, m := range sections {
			switch v := m[key].(type) {
			case []any:
				var out []string
				for _, item := range v {
					switch p := item.(type) {
					case string:
						if s := strings.TrimSpace(p); s != "" {
							out = append(out, s)
						}
					case map[string]any:
						if s := firstString([]map[string]any{p}, numberAliases); s != "" {
							out = append(out, s)
						}
					}
				}
				if len(out) > 0 {
					return out
				}
			case string:
				var out []string
				for _, p := range strings.Split(v, ",") {
					if s := strings.TrimSpace(p); s != "" {
						out = append(out, s)
					}
				}
				if len(out) > 0 {
					return out
				}
			}
		}
	}
	return nil
}

// normalizeBirthDate rewrites DD/MM/YYYY and DD-MM-YYYY to YYYY-MM-DD.
// Anything else passes through unchanged rather than failing the lookup.
func normalizeBirthDate(s string) string {
	for _, layout := range []string{"02/01/2006", "02-01-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// parseIncome converts "1.234,56" (pt-BR convention) into a decimal.
func parseIncome(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// normalizeName title-cases all-caps bureau names; mixed-case input is
// assumed intentional and kept as-is.
func normalizeName(s string) string {
	if s != strings.ToUpper(s) {
		return s
	}
	// cases.Caser carries state, so build one per call; runs may be concurrent.
	return cases.Title(language.BrazilianPortuguese).String(strings.ToLower(s))
}
