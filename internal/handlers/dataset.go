package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/authz"
	"github.com/synthara/forge-api/internal/repository"
)

type DatasetHandler struct {
	datasetRepository repository.DatasetRepository
	curveRepository   repository.BondingCurveRepository
	logger            zerolog.Logger
}

func NewDatasetHandler(datasets repository.DatasetRepository, curves repository.BondingCurveRepository, logger zerolog.Logger) *DatasetHandler {
	return &DatasetHandler{
		datasetRepository: datasets,
		curveRepository:   curves,
		logger:            logger,
	}
}

// GetDataset returns a dataset when it is publicly listed or owned by the
// requester. Drafts stay private to their creator.
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	datasetID := mux.Vars(r)["id"]
	ds, err := h.datasetRepository.Get(r.Context(), datasetID)
	if err != nil {
		if errors.Is(err, repository.ErrDatasetNotFound) {
			http.Error(w, "Dataset not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("dataset_id", datasetID).Msg("Failed to load dataset")
		http.Error(w, "Failed to load dataset", http.StatusInternalServerError)
		return
	}

	if !ds.Public() && ds.CreatorID != userID && !authz.IsAdminFromRequest(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ds)
}

// GetBondingCurve returns the mirrored chain state for a contract address.
func (h *DatasetHandler) GetBondingCurve(w http.ResponseWriter, r *http.Request) {
	contractAddress := mux.Vars(r)["contract"]
	curve, err := h.curveRepository.GetByContract(r.Context(), contractAddress)
	if err != nil {
		if errors.Is(err, repository.ErrCurveNotFound) {
			http.Error(w, "Bonding curve not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("contract", contractAddress).Msg("Failed to load bonding curve")
		http.Error(w, "Failed to load bonding curve", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(curve)
}
