// Package mongo keeps the doctor license registry and the verification
// history in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/report"
	"github.com/wudi/rxverify/rx"
	"github.com/wudi/rxverify/store"
)

const (
	DefaultDatabase = "medauth"

	doctorsCollection       = "doctors"
	prescriptionsCollection = "prescriptions"
	connectTimeout          = 10 * time.Second
)

// Store implements reference.LicenseRegistry, reference.DoctorWriter and
// store.History.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and pings the server.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	if database == "" {
		database = DefaultDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: failed to ping MongoDB: %v", reference.ErrUnavailable, err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique license index on doctors and the lookup
// index on prescription history.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(doctorsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "license_number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create doctors index: %w", err)
	}
	_, err = s.db.Collection(prescriptionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "doctor_license", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create prescriptions index: %w", err)
	}
	return nil
}

func (s *Store) FindByLicense(ctx context.Context, license string) (rx.Doctor, bool, error) {
	var d rx.Doctor
	err := s.db.Collection(doctorsCollection).FindOne(ctx, bson.M{"license_number": license}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return rx.Doctor{}, false, nil
		}
		return rx.Doctor{}, false, unavailable(err)
	}
	return d, true, nil
}

func (s *Store) AddDoctor(ctx context.Context, d rx.Doctor) error {
	if d.LicenseNumber == "" {
		return fmt.Errorf("license number is required")
	}
	if _, err := s.db.Collection(doctorsCollection).InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", reference.ErrDuplicate, d.LicenseNumber)
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

// UpdateDoctorStatus reports whether the license is registered, even when the
// status already had the requested value.
func (s *Store) UpdateDoctorStatus(ctx context.Context, license, status string) (bool, error) {
	res, err := s.db.Collection(doctorsCollection).UpdateOne(ctx,
		bson.M{"license_number": license},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return false, fmt.Errorf("update doctor status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) SaveVerification(ctx context.Context, env report.Envelope) error {
	if env.ID == "" {
		return fmt.Errorf("verification id is required")
	}
	if _, err := s.db.Collection(prescriptionsCollection).InsertOne(ctx, env); err != nil {
		return fmt.Errorf("save verification: %w", err)
	}
	return nil
}

func (s *Store) GetVerification(ctx context.Context, id string) (report.Envelope, error) {
	var env report.Envelope
	err := s.db.Collection(prescriptionsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&env)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return report.Envelope{}, store.ErrNotFound
		}
		return report.Envelope{}, fmt.Errorf("get verification: %w", err)
	}
	return env, nil
}

// History returns the newest verifications for license first.
func (s *Store) History(ctx context.Context, license string, limit int) ([]report.Envelope, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(store.NormalizeLimit(limit)))
	cursor, err := s.db.Collection(prescriptionsCollection).Find(ctx, bson.M{"doctor_license": license}, opts)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer cursor.Close(ctx)

	out := []report.Envelope{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", reference.ErrUnavailable, err)
}
