package generation

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/synthara/forge-api/internal/repository"
)

// maxContextChars bounds the retrieval context embedded into provider
// prompts.
const maxContextChars = 4000

// DocumentRetriever assembles retrieval context from stored knowledge
// documents.
type DocumentRetriever struct {
	repo repository.KnowledgeRepository
}

func NewDocumentRetriever(repo repository.KnowledgeRepository) *DocumentRetriever {
	return &DocumentRetriever{repo: repo}
}

func (r *DocumentRetriever) FetchContext(ctx context.Context, documentIDs []string) (string, error) {
	docs, err := r.repo.GetByIDs(ctx, documentIDs)
	if err != nil {
		return "", errors.Wrap(err, "failed to load knowledge documents")
	}

	var b strings.Builder
	for _, doc := range docs {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(doc.Title)
		b.WriteString("\n")
		b.WriteString(doc.Content)
		if b.Len() >= maxContextChars {
			break
		}
	}

	text := b.String()
	if len(text) > maxContextChars {
		text = text[:maxContextChars]
	}
	return text, nil
}
