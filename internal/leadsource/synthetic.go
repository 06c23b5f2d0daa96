package leadsource

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// industryProfile holds the name pools used to build plausible leads for
// one industry.
type industryProfile struct {
	companies []string
	roles     []string
	domains   []string
}

var industries = map[string]industryProfile{
	"Technology": {
		companies: []string{"TechCorp", "DataSystems", "CloudVentures", "AIInnovate", "CyberSolutions"},
		roles:     []string{"VP of Engineering", "CTO", "Head of IT", "Director of Technology", "Chief Data Officer"},
		domains:   []string{"tech", "software", "cloud", "data", "ai"},
	},
	"Manufacturing": {
		companies: []string{"IndustrialWorks", "ManufactureHub", "PrecisionParts", "AutoAssembly", "ProduceMakers"},
		roles:     []string{"VP of Operations", "COO", "Plant Manager", "Supply Chain Director", "Operations Manager"},
		domains:   []string{"manufacturing", "industrial", "production", "assembly", "factory"},
	},
	"Healthcare": {
		companies: []string{"MedicalCare", "HealthSystems", "WellnessGroup", "CareProviders", "HealthTech"},
		roles:     []string{"Chief Medical Officer", "VP of Operations", "Hospital Administrator", "Director of IT", "Head of Procurement"},
		domains:   []string{"health", "medical", "care", "wellness", "hospital"},
	},
	"Retail": {
		companies: []string{"RetailCo", "ShopSmart", "MarketPlace", "ConsumerGoods", "TradeCenter"},
		roles:     []string{"VP of Sales", "Retail Operations Director", "Merchandising Manager", "Store Operations VP", "Chief Retail Officer"},
		domains:   []string{"retail", "shop", "store", "market", "consumer"},
	},
	"Finance": {
		companies: []string{"FinanceHub", "BankingGroup", "InvestCorp", "CapitalSolutions", "WealthManagement"},
		roles:     []string{"CFO", "VP of Finance", "Treasury Director", "Risk Management Director", "Chief Investment Officer"},
		domains:   []string{"finance", "banking", "invest", "capital", "wealth"},
	},
	"Logistics": {
		companies: []string{"LogiTrans", "ShipFast", "SupplyChainPro", "FreightMasters", "DeliveryHub"},
		roles:     []string{"VP of Logistics", "Supply Chain Director", "Operations Manager", "Distribution VP", "Fleet Manager"},
		domains:   []string{"logistics", "transport", "supply", "freight", "delivery"},
	},
}

// industryNames in a fixed order so seeded generation is deterministic.
var industryNames = []string{"Technology", "Manufacturing", "Healthcare", "Retail", "Finance", "Logistics"}

var countries = []string{
	"United States", "United Kingdom", "Canada", "Germany", "France",
	"Australia", "Netherlands", "Singapore", "Sweden", "Switzerland",
}

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
	"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Carlos", "Priya", "Wei", "Fatima", "Lars", "Ingrid",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Andersson", "Mueller", "Dubois", "Tan", "Okafor", "Patel",
	"Kim", "Nguyen", "Kowalski", "Ivanov", "Rossi", "Silva", "Chen", "Hansen",
}

var companyPrefixes = []string{
	"Northwind", "Apex", "Summit", "Vertex", "Horizon", "Pioneer", "Atlas",
	"Beacon", "Cascade", "Keystone", "Meridian", "Sterling", "Vanguard", "Zenith",
}

// Synthetic generates deterministic, valid leads from a fixed seed. The same
// seed always yields the same sequence, so repeated captures dedupe cleanly
// on external_id.
type Synthetic struct {
	Seed int64
}

// FetchNew generates up to limit leads.
func (s *Synthetic) FetchNew(ctx context.Context, limit int) ([]model.Lead, error) {
	rng := rand.New(rand.NewSource(s.Seed))

	leads := make([]model.Lead, 0, limit)
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		leads = append(leads, generateLead(rng, s.Seed, i))
	}
	return leads, nil
}

func generateLead(rng *rand.Rand, seed int64, n int) model.Lead {
	industry := industryNames[rng.Intn(len(industryNames))]
	profile := industries[industry]

	first := firstNames[rng.Intn(len(firstNames))]
	last := lastNames[rng.Intn(len(lastNames))]
	company := companyPrefixes[rng.Intn(len(companyPrefixes))] + " " + profile.companies[rng.Intn(len(profile.companies))]
	role := profile.roles[rng.Intn(len(profile.roles))]

	cleanCompany := strings.ToLower(strings.ReplaceAll(company, " ", ""))
	emailLocal := [3]string{
		strings.ToLower(first) + "." + strings.ToLower(last),
		strings.ToLower(first[:1]) + strings.ToLower(last),
		strings.ToLower(first),
	}[rng.Intn(3)]

	linkedin := "https://www.linkedin.com/in/" + strings.ToLower(first) + "-" + strings.ToLower(last)
	if rng.Float64() > 0.7 {
		linkedin += fmt.Sprintf("-%d", 100+rng.Intn(900))
	}

	extensions := []string{".com", ".io", ".co", ".net"}

	return model.Lead{
		// Position-in-sequence keys keep re-captures of the same seed stable
		// even when two generated people collide on name and company.
		ExternalID:     fmt.Sprintf("syn-%d-%04d", seed, n),
		FullName:       first + " " + last,
		CompanyName:    company,
		RoleTitle:      role,
		Industry:       industry,
		CompanyWebsite: "https://www." + cleanCompany + extensions[rng.Intn(len(extensions))],
		Email:          emailLocal + "@" + cleanCompany + ".com",
		LinkedInURL:    linkedin,
		Country:        countries[rng.Intn(len(countries))],
		Source:         "synthetic",
	}
}
