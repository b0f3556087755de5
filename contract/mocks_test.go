package contract

import (
	"crypto/x509"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// In-memory ledger fake. It replicates Fabric's composite-key encoding so
// the production key scheme is exercised unchanged. Methods the contract
// never calls fall through to the embedded nil interface and panic, which
// keeps the fake honest about its surface.

const compositeKeyNamespace = "\x00"

type fakeEvent struct {
	name    string
	payload []byte
}

type fakeStub struct {
	shim.ChaincodeStubInterface
	state  map[string][]byte
	events []fakeEvent
	now    time.Time
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		state: map[string][]byte{},
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStub) GetState(key string) ([]byte, error) {
	value, ok := f.state[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (f *fakeStub) PutState(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	f.state[key] = stored
	return nil
}

func (f *fakeStub) DelState(key string) error {
	delete(f.state, key)
	return nil
}

func (f *fakeStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := compositeKeyNamespace + objectType + string(rune(0))
	for _, attr := range attributes {
		ck += attr + string(rune(0))
	}
	return ck, nil
}

func (f *fakeStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, _ := f.CreateCompositeKey(objectType, keys)
	matching := []string{}
	for key := range f.state {
		if strings.HasPrefix(key, prefix) {
			matching = append(matching, key)
		}
	}
	sort.Strings(matching)
	return &fakeIterator{stub: f, keys: matching}, nil
}

func (f *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(f.now), nil
}

func (f *fakeStub) SetEvent(name string, payload []byte) error {
	f.events = append(f.events, fakeEvent{name: name, payload: payload})
	return nil
}

// eventsNamed returns the payloads of all recorded events with the given name.
func (f *fakeStub) eventsNamed(name string) [][]byte {
	payloads := [][]byte{}
	for _, ev := range f.events {
		if ev.name == name {
			payloads = append(payloads, ev.payload)
		}
	}
	return payloads
}

type fakeIterator struct {
	stub *fakeStub
	keys []string
	pos  int
}

func (it *fakeIterator) HasNext() bool {
	return it.pos < len(it.keys)
}

func (it *fakeIterator) Next() (*queryresult.KV, error) {
	key := it.keys[it.pos]
	it.pos++
	return &queryresult.KV{Key: key, Value: it.stub.state[key]}, nil
}

func (it *fakeIterator) Close() error {
	return nil
}

type fakeClientIdentity struct {
	id    string
	mspID string
}

func (ci *fakeClientIdentity) GetID() (string, error)    { return ci.id, nil }
func (ci *fakeClientIdentity) GetMSPID() (string, error) { return ci.mspID, nil }
func (ci *fakeClientIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	return "", false, nil
}
func (ci *fakeClientIdentity) AssertAttributeValue(attrName, attrValue string) error { return nil }
func (ci *fakeClientIdentity) GetX509Certificate() (*x509.Certificate, error)       { return nil, nil }

type fakeTxContext struct {
	stub *fakeStub
	ci   cid.ClientIdentity
}

func (c *fakeTxContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *fakeTxContext) GetClientIdentity() cid.ClientIdentity { return c.ci }

// ctxFor builds a transaction context for the given caller over a shared stub.
func ctxFor(stub *fakeStub, fullID string) *fakeTxContext {
	return &fakeTxContext{stub: stub, ci: &fakeClientIdentity{id: fullID, mspID: "Org1MSP"}}
}

// --- Shared fixtures ---

const (
	adminFullID = "x509::CN=admin::OU=admin"
	aliceFullID = "x509::CN=alice::OU=client"
	bobFullID   = "x509::CN=bob::OU=client"
	eveFullID   = "x509::CN=eve::OU=client"
)

var (
	digestA = strings.Repeat("ab", 32) // 64 hex chars
	digestB = strings.Repeat("cd", 32)
	digestC = strings.Repeat("12", 32)
)

// bootstrapAdmin seeds the first admin and returns its context.
func bootstrapAdmin(t *testing.T, c *LicenseManagerContract, stub *fakeStub) *fakeTxContext {
	t.Helper()
	adminCtx := ctxFor(stub, adminFullID)
	require.NoError(t, c.BootstrapLedger(adminCtx, "admin@example.com"))
	return adminCtx
}

// registerApproved registers an account and approves it through the admin.
func registerApproved(t *testing.T, c *LicenseManagerContract, stub *fakeStub, adminCtx *fakeTxContext, fullID, email string) *fakeTxContext {
	t.Helper()
	userCtx := ctxFor(stub, fullID)
	require.NoError(t, c.RegisterAccount(userCtx, email))
	require.NoError(t, c.ApproveAccount(adminCtx, email))
	return userCtx
}

// submitApproved submits a digest as the given user and approves it as admin.
func submitApproved(t *testing.T, c *LicenseManagerContract, adminCtx, userCtx *fakeTxContext, digest, name, version string) {
	t.Helper()
	require.NoError(t, c.SubmitSoftware(userCtx, digest, name, version))
	require.NoError(t, c.ApproveSoftware(adminCtx, digest))
}
