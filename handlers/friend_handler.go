package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ferreirogomes/rachaconta/models"
	"github.com/ferreirogomes/rachaconta/storage"
)

// FriendHandler lida com requisições HTTP do diretório de amigos — a fonte
// que o planejador usa para resolver participantes em endereços na ledger.
type FriendHandler struct {
	DB *storage.DB
}

// NewFriendHandler cria uma nova instância do handler de amigos.
func NewFriendHandler(db *storage.DB) *FriendHandler {
	return &FriendHandler{DB: db}
}

// CreateFriend cadastra (ou atualiza) um contato.
// POST /friends
func (h *FriendHandler) CreateFriend(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if requestBody.Name == "" {
		http.Error(w, "Nome é obrigatório", http.StatusBadRequest)
		return
	}

	friend := models.Friend{
		ID:        uuid.New().String(),
		Name:      requestBody.Name,
		Address:   requestBody.Address,
		CreatedAt: time.Now(),
	}

	saved, err := h.DB.SaveFriend(r.Context(), friend)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(saved)
}

// ListFriends devolve todos os contatos.
// GET /friends
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.DB.ListFriends(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(friends)
}

// GetFriendByID obtém um contato pelo ID.
// GET /friends/{id}
func (h *FriendHandler) GetFriendByID(w http.ResponseWriter, r *http.Request) {
	friendID := chi.URLParam(r, "id")
	if friendID == "" {
		http.Error(w, "ID do amigo é obrigatório", http.StatusBadRequest)
		return
	}

	friend, found, err := h.DB.GetFriend(r.Context(), friendID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Amigo não encontrado", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(friend)
}
