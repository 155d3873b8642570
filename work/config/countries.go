package config

// Country describes one supported catalog country. Group is the backend's
// catalog filter key; AltGroups lists alternate group names the backend has
// been seen using for the same region. LogoDir is the matching directory in
// the tv-logos repository ("" when the repository has no directory for it).
type Country struct {
	ID        string   // Short country identifier used in catalog ids and cache keys
	Name      string   // Display name shown in the manifest
	Group     string   // Primary backend group filter
	AltGroups []string // Alternate backend group names tried when the primary is empty
	LogoDir   string   // tv-logos repository directory name
}

// countries is the static reference list of supported countries. The backend
// occasionally renames groups (Nederland has appeared as Netherlands and
// Holland), hence the alternates.
var countries = []Country{
	{ID: "it", Name: "Italia", Group: "Italy", LogoDir: "italy"},
	{ID: "uk", Name: "United Kingdom", Group: "United Kingdom", LogoDir: "united-kingdom"},
	{ID: "fr", Name: "France", Group: "France", LogoDir: "france"},
	{ID: "de", Name: "Germany", Group: "Germany", LogoDir: "germany"},
	{ID: "pt", Name: "Portugal", Group: "Portugal", LogoDir: "portugal"},
	{ID: "es", Name: "Spain", Group: "Spain", LogoDir: "spain"},
	{ID: "al", Name: "Albania", Group: "Albania", LogoDir: "albania"},
	{ID: "tr", Name: "Turkey", Group: "Turkey", LogoDir: "turkey"},
	{ID: "nl", Name: "Nederland", Group: "Nederland", AltGroups: []string{"Netherlands", "Holland"}, LogoDir: "netherlands"},
	{ID: "ar", Name: "Arabia", Group: "Arabia", LogoDir: "arabic"},
	{ID: "bk", Name: "Balkans", Group: "Balkans", LogoDir: "balkans"},
	{ID: "ru", Name: "Russia", Group: "Russia", LogoDir: "russia"},
	{ID: "ro", Name: "Romania", Group: "Romania", LogoDir: "romania"},
	{ID: "pl", Name: "Poland", Group: "Poland", LogoDir: "poland"},
	{ID: "bg", Name: "Bulgaria", Group: "Bulgaria", LogoDir: "bulgaria"},
}

// Countries returns a copy of the supported country list so callers cannot
// mutate the reference table.
func Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

// CountryByID returns the country with the given id, or nil when unknown.
func CountryByID(id string) *Country {
	for i := range countries {
		if countries[i].ID == id {
			c := countries[i]
			return &c
		}
	}
	return nil
}
