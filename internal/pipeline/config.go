package pipeline

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/config"
)

// StageConfigFrom builds the run input from the application configuration.
func StageConfigFrom(cfg *config.Config) StageConfig {
	p := cfg.Pipeline

	catalog := make([]Unit, 0, len(cfg.CatalogTargets()))
	for _, name := range cfg.CatalogTargets() {
		catalog = append(catalog, Unit{ID: name, Table: crawlerLayer(name)})
	}

	refs := make([]SecretRef, 0, len(cfg.Secrets.Required))
	for _, s := range cfg.Secrets.Required {
		refs = append(refs, SecretRef{Name: s.Name, Ref: s.Ref})
	}

	return StageConfig{
		Stages: []StageSpec{
			{Stage: StageExtractConnectors, Units: units(p.Connectors), Required: p.Required.Connectors},
			{Stage: StageExtractReplication, Units: units(p.ReplicationTasks), Required: p.Required.Replication},
			{Stage: StageTransform, Units: units(p.TransformJobs), Required: p.Required.Transform},
			{Stage: StageCatalog, Units: catalog, Required: p.Required.Catalog},
		},
		RequiredSecrets:        refs,
		AbortOnRequiredFailure: p.AbortOnRequiredFailure,
		BestEffortConcurrency:  p.BestEffortConcurrency,
	}
}

func units(ids []string) []Unit {
	out := make([]Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, Unit{ID: id})
	}
	return out
}

// crawlerLayer extracts the medallion layer from names like "silver-crawler-dev".
func crawlerLayer(name string) string {
	for _, layer := range []string{"bronze", "silver", "gold"} {
		if strings.HasPrefix(name, layer) {
			return layer
		}
	}
	return ""
}
