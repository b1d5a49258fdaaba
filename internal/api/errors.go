package api

import (
	"errors"
	"net/http"

	"github.com/stefando/weddingPhotos/internal/identity"
	"github.com/stefando/weddingPhotos/internal/objectstore"
	"github.com/stefando/weddingPhotos/internal/photos"
)

// Client-facing messages
const (
	msgMissingToken    = "Token manquant"
	msgInvalidToken    = "Token invalide"
	msgFamilleNotFound = "Famille introuvable"
	msgMissingFile     = "Fichier manquant"
	msgFileTooLarge    = "Fichier trop volumineux"
	msgBadContentType  = "Content-Type multipart/form-data attendu"
	msgBadMultipart    = "Requête multipart invalide"
	msgTooManyFiles    = "Un seul fichier attendu"
	msgMissingConfig   = "Configuration serveur manquante"
	msgStorageFailure  = "Erreur du stockage"
	msgInternal        = "Erreur interne"
)

// operation selects the status used for operation-specific cases.
type operation int

const (
	opUpload operation = iota
	opList
)

// classify maps a service error onto the HTTP response sent to the caller.
func classify(err error, op operation) (int, errorBody) {
	var upstream *objectstore.UpstreamError
	var parseErr *objectstore.ParseError

	switch {
	case errors.Is(err, photos.ErrMissingToken):
		return http.StatusBadRequest, errorBody{Error: msgMissingToken}
	case errors.Is(err, photos.ErrMissingFile):
		return http.StatusBadRequest, errorBody{Error: msgMissingFile}
	case errors.Is(err, photos.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorBody{Error: msgFileTooLarge}
	case errors.Is(err, identity.ErrTenantNotFound):
		// An upload cannot tell an orphan token from a bad one
		if op == opList {
			return http.StatusNotFound, errorBody{Error: msgFamilleNotFound}
		}
		return http.StatusUnauthorized, errorBody{Error: msgInvalidToken}
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Error: msgInvalidToken}
	case errors.Is(err, objectstore.ErrNoCredentials):
		return http.StatusInternalServerError, errorBody{Error: msgMissingConfig}
	case errors.As(err, &upstream):
		return http.StatusBadGateway, errorBody{Error: msgStorageFailure, Status: upstream.Status, Details: upstream.Body}
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, errorBody{Error: msgStorageFailure, Details: parseErr.Error()}
	case err != nil:
		// Transport failures reaching the store
		return http.StatusBadGateway, errorBody{Error: msgStorageFailure, Details: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: msgInternal}
	}
}
