package projectaccess

import (
	"context"
	"fmt"

	"quire/internal/api"
	"quire/internal/project"
)

// Session represents a project access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries API-backed access first, then falls back to direct
// store access. Only an unreachable daemon triggers the fallback; any other
// API failure (a rejected token, say) is returned.
func OpenWithFallback(
	ctx context.Context,
	dial func() (*api.Client, error),
	openCatalog func() (*project.Catalog, error),
) (Session, error) {
	if dial != nil {
		client, err := dial()
		if err == nil {
			_, err = client.Daemon(ctx)
			if err == nil {
				return Session{Access: NewAPIAccess(client)}, nil
			}
		}
		if !api.IsUnavailable(err) {
			return Session{}, fmt.Errorf("contact daemon: %w", err)
		}
	}

	if openCatalog == nil {
		return Session{}, fmt.Errorf("open project catalog: no catalog opener configured")
	}
	catalog, err := openCatalog()
	if err != nil {
		return Session{}, fmt.Errorf("open project catalog: %w", err)
	}
	return Session{
		Access: NewCatalogAccess(catalog),
		close:  catalog.Close,
	}, nil
}
