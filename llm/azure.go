package llm

import (
	"context"
	"fmt"
)

// azureAPIVersion is pinned; Azure rejects requests without one.
const azureAPIVersion = "2023-12-01-preview"

// azureProvider implements Provider for Azure OpenAI deployments. Azure
// speaks the same wire format but routes by deployment name and
// authenticates with an api-key header instead of a bearer token.
type azureProvider struct {
	base client
}

// NewAzure creates a provider for an Azure OpenAI endpoint. cfg.BaseURL is
// the resource endpoint (https://<resource>.openai.azure.com) and cfg.Model
// the deployment name.
func NewAzure(cfg Config) Provider {
	cfg.Provider = "azure"
	return &azureProvider{base: newClient(cfg)}
}

func (p *azureProvider) deploymentPath(op string) string {
	return fmt.Sprintf("/openai/deployments/%s/%s?api-version=%s",
		p.base.cfg.Model, op, azureAPIVersion)
}

func (p *azureProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, p.deploymentPath("chat/completions"), req)
}

func (p *azureProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, p.deploymentPath("embeddings"), texts)
}
