package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/amse-project/amse/internal/config"
)

// modelsCollection is the Firestore collection holding model records
const modelsCollection = "models"

// FirebaseBackend is the production Backend. Setup establishes both a
// Firestore connection and a realtime-tree connection to the same
// project; either failing is fatal to setup.
type FirebaseBackend struct {
	firestore *firestore.Client
	realtime  *db.Client
	log       zerolog.Logger
}

// NewFirebaseBackend connects to Firestore and the Realtime Database
// using the loaded service account credentials. A nil FirebaseConfig
// fails immediately with a *SetupError; no connection is attempted.
func NewFirebaseBackend(ctx context.Context, fb *config.FirebaseConfig, log zerolog.Logger) (*FirebaseBackend, error) {
	log = log.With().Str("component", "firebase").Logger()

	if fb == nil {
		err := &SetupError{Reason: "firebase configuration not loaded"}
		log.Error().Err(err).Msg("Failed to initialize Firebase client")
		return nil, err
	}

	// Reassemble the service account JSON the SDK expects. PrivateKey
	// already has real newlines (unescaped at config load).
	credJSON, err := json.Marshal(map[string]string{
		"type":                        "service_account",
		"project_id":                  fb.ProjectID,
		"private_key_id":              fb.PrivateKeyID,
		"private_key":                 fb.PrivateKey,
		"client_email":                fb.ClientEmail,
		"client_id":                   fb.ClientID,
		"auth_uri":                    fb.AuthURI,
		"token_uri":                   fb.TokenURI,
		"auth_provider_x509_cert_url": fb.AuthProviderX509CertURL,
		"client_x509_cert_url":        fb.ClientX509CertURL,
	})
	if err != nil {
		serr := &SetupError{Reason: "failed to encode credentials", Err: err}
		log.Error().Err(err).Msg("Failed to initialize Firebase client")
		return nil, serr
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:   fb.ProjectID,
		DatabaseURL: fmt.Sprintf("https://%s.firebaseio.com", fb.ProjectID),
	}, option.WithCredentialsJSON(credJSON))
	if err != nil {
		serr := &SetupError{Reason: "firebase app initialization failed", Err: err}
		log.Error().Err(err).Msg("Failed to initialize Firebase client")
		return nil, serr
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		serr := &SetupError{Reason: "firestore connection failed", Err: err}
		log.Error().Err(err).Msg("Failed to initialize Firebase client")
		return nil, serr
	}

	rtdb, err := app.Database(ctx)
	if err != nil {
		_ = fs.Close()
		serr := &SetupError{Reason: "realtime database connection failed", Err: err}
		log.Error().Err(err).Msg("Failed to initialize Firebase client")
		return nil, serr
	}

	log.Info().Str("project_id", fb.ProjectID).Msg("Firebase client initialized")

	return &FirebaseBackend{
		firestore: fs,
		realtime:  rtdb,
		log:       log,
	}, nil
}

// AddModel writes a new document to the models collection
func (b *FirebaseBackend) AddModel(ctx context.Context, doc map[string]interface{}) (string, error) {
	ref, _, err := b.firestore.Collection(modelsCollection).Add(ctx, doc)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// UpdateModel overwrites the given top-level fields of an existing
// document. Firestore rejects the update with NotFound when the
// document does not exist; that error propagates unchanged.
func (b *FirebaseBackend) UpdateModel(ctx context.Context, id string, fields map[string]interface{}) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(fields))
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: fields[k]})
	}

	_, err := b.firestore.Collection(modelsCollection).Doc(id).Update(ctx, updates)
	return err
}

// GetModel fetches the raw fields of one document
func (b *FirebaseBackend) GetModel(ctx context.Context, id string) (map[string]interface{}, error) {
	snap, err := b.firestore.Collection(modelsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Data(), nil
}

// ListModels fetches every document in the models collection
func (b *FirebaseBackend) ListModels(ctx context.Context) ([]Document, error) {
	iter := b.firestore.Collection(modelsCollection).Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}

	return docs, nil
}

// RealtimeRoot returns the root reference of the realtime tree. Its
// schema is owned by higher layers.
func (b *FirebaseBackend) RealtimeRoot() *db.Ref {
	return b.realtime.NewRef("/")
}

// Close releases the Firestore connection. The realtime client holds no
// resources that need explicit release.
func (b *FirebaseBackend) Close() error {
	return b.firestore.Close()
}
