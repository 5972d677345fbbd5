package catalog

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

// fileDocument is the YAML layout of a catalog file.
type fileDocument struct {
	Settings       Settings                       `yaml:"settings"`
	KnownTests     map[string]map[string][]string `yaml:"known_tests"`
	TestManagement testManagementTree             `yaml:"test_management"`
	Skippable      struct {
		CorrelationID string   `yaml:"correlation_id"`
		Tests         []string `yaml:"tests"`
		Suites        []string `yaml:"suites"`
	} `yaml:"skippable"`
}

// FileCatalog serves catalog data from a YAML file, for offline runs and tests.
// Settings omitted from the file keep their defaults.
type FileCatalog struct {
	doc fileDocument
}

var _ Catalog = (*FileCatalog)(nil)

// NewFileCatalog loads path. A missing or malformed file is logged and
// yields a catalog with every feature disabled.
func NewFileCatalog(path string, log log.Logger) *FileCatalog {
	c := &FileCatalog{doc: fileDocument{Settings: DefaultSettings()}}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Error reading catalog file", "path", path, "err", err)
		return c
	}
	if err := c.parse(data); err != nil {
		log.Warn("Error parsing catalog file", "path", path, "err", err)
		return &FileCatalog{doc: fileDocument{Settings: DefaultSettings()}}
	}
	return c
}

func (c *FileCatalog) parse(data []byte) error {
	return yaml.Unmarshal(data, &c.doc)
}

func (c *FileCatalog) Settings(context.Context) Settings { return c.doc.Settings }

func (c *FileCatalog) KnownTests(context.Context) map[types.TestRef]struct{} {
	return knownTestsFromTree(c.doc.KnownTests)
}

func (c *FileCatalog) TestManagement(context.Context) map[types.TestRef]TestProperties {
	return c.doc.TestManagement.properties()
}

func (c *FileCatalog) SkippableTests(context.Context) SkippableItems {
	items := SkippableItems{
		Tests:         make(map[types.TestRef]struct{}),
		Suites:        make(map[types.SuiteRef]struct{}),
		CorrelationID: c.doc.Skippable.CorrelationID,
	}
	for _, id := range c.doc.Skippable.Tests {
		items.Tests[types.ParseTestRef(id)] = struct{}{}
	}
	for _, id := range c.doc.Skippable.Suites {
		items.Suites[types.ParseTestRef(id+"::").Suite] = struct{}{}
	}
	return items
}
