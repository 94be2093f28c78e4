package main

import (
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/arjunvostrikov/barrelkv/internal/bytestring"
	"github.com/arjunvostrikov/barrelkv/internal/config"
	"github.com/arjunvostrikov/barrelkv/internal/engine"
)

func main() {
	// Initialize logger
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	testName := os.Args[1]

	switch testName {
	case "100k-write":
		test100kWrite(cfg)
	case "overlapping":
		testOverlappingKey(cfg)
	case "integrity":
		testIntegrity(cfg)
	case "merge":
		testMerge(cfg)
	default:
		fmt.Printf("Unknown test: %s\n", testName)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run tests/test.go <test-name>")
	fmt.Println("\nAvailable tests:")
	fmt.Println("  100k-write  - Write 100,000 unique keys and measure performance")
	fmt.Println("  overlapping - Test overlapping key writes (key_1 with value_A, then value_B)")
	fmt.Println("  integrity   - Write 100k keys, then randomly read 1,000 to verify integrity")
	fmt.Println("  merge       - Write 10,000 keys twice so the active file rotates, then merge")
}

func openEngine(cfg *config.Config) *engine.Engine {
	kv, err := engine.Open(cfg.DATA_DIR, cfg.Options())
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	return kv
}

// Test 1: 100k Write Test (Speed & Integrity)
func test100kWrite(cfg *config.Config) {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 1: 100k Write Test (Speed & Integrity)")
	fmt.Println("=" + strings.Repeat("=", 60))

	kv := openEngine(cfg)
	defer kv.Close()

	totalKeys := 100000
	startTime := time.Now()
	errors := 0

	fmt.Printf("Writing %d keys...\n", totalKeys)
	for i := 0; i < totalKeys; i++ {
		key := bytestring.From(fmt.Sprintf("key_%d", i))
		value := bytestring.From(fmt.Sprintf("value_%d", i))

		if err := kv.Put(key, value); err != nil {
			errors++
			if errors <= 10 { // Only print first 10 errors
				fmt.Printf("ERROR: Failed to put key_%d: %v\n", i, err)
			}
		}

		if (i+1)%10000 == 0 {
			elapsed := time.Since(startTime)
			rate := float64(i+1) / elapsed.Seconds()
			fmt.Printf("Progress: %d/%d keys written (%.2f keys/sec)\n", i+1, totalKeys, rate)
		}
	}

	elapsed := time.Since(startTime)
	rate := float64(totalKeys) / elapsed.Seconds()

	fmt.Println("\n" + strings.Repeat("-", 60))
	fmt.Printf("Total time: %v\n", elapsed)
	fmt.Printf("Write rate: %.2f keys/second\n", rate)
	fmt.Printf("Errors: %d\n", errors)

	if errors > 0 {
		fmt.Printf("\nTEST FAILED: %d errors occurred\n", errors)
		os.Exit(1)
	}

	keyDirSize := kv.KeyCount()
	fmt.Printf("Keys in memory (keyDir): %d\n", keyDirSize)
	if keyDirSize != totalKeys {
		fmt.Printf("WARNING: keyDir has %d keys, expected %d\n", keyDirSize, totalKeys)
	}

	if elapsed > 2*time.Minute {
		fmt.Printf("\nWARNING: Write took over 2 minutes (%.2f minutes)\n", elapsed.Minutes())
	}

	fmt.Println("\nTEST PASSED: All 100,000 keys written successfully")
}

// Test 2: Overlapping Key Test
func testOverlappingKey(cfg *config.Config) {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 2: Overlapping Key Test")
	fmt.Println("=" + strings.Repeat("=", 60))

	kv := openEngine(cfg)
	defer kv.Close()

	key := bytestring.From("key_1")
	valueA := bytestring.From("value_A")
	valueB := bytestring.From("value_B")

	fmt.Printf("Step 1: Putting %s with value '%s'\n", key.String(), valueA.String())
	if err := kv.Put(key, valueA); err != nil {
		log.Fatalf("Failed to put key_1 with value_A: %v", err)
	}

	fmt.Printf("\nStep 2: Putting %s with value '%s' (overwriting)\n", key.String(), valueB.String())
	if err := kv.Put(key, valueB); err != nil {
		log.Fatalf("Failed to put key_1 with value_B: %v", err)
	}

	fmt.Printf("\nStep 3: Getting %s\n", key.String())
	value, err := kv.Get(key)
	if err != nil {
		log.Fatalf("Failed to get key_1: %v", err)
	}

	fmt.Printf("  Retrieved value: '%s'\n", value.String())

	if !value.Equal(valueB) {
		fmt.Printf("\nTEST FAILED: Expected '%s', got '%s'\n", valueB.String(), value.String())
		os.Exit(1)
	}

	keyDirSize := kv.KeyCount()
	if keyDirSize != 1 {
		fmt.Printf("WARNING: keyDir has %d keys, expected 1\n", keyDirSize)
	} else {
		fmt.Printf("  keyDir contains 1 key (correct - only latest offset)\n")
	}

	fmt.Println("\nTEST PASSED: Latest value correctly returned")
}

// Test 3: Integrity Test (Read-Back)
func testIntegrity(cfg *config.Config) {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 3: Integrity Test (Read-Back)")
	fmt.Println("=" + strings.Repeat("=", 60))

	kv := openEngine(cfg)
	defer kv.Close()

	totalKeys := 100000
	fmt.Printf("Step 1: Writing %d keys...\n", totalKeys)
	startTime := time.Now()

	for i := 0; i < totalKeys; i++ {
		key := bytestring.From(fmt.Sprintf("key_%d", i))
		value := bytestring.From(fmt.Sprintf("value_%d", i))
		if err := kv.Put(key, value); err != nil {
			log.Fatalf("Failed to put key_%d: %v", i, err)
		}
	}

	writeTime := time.Since(startTime)
	fmt.Printf("  Write completed in %v\n", writeTime)

	fmt.Printf("\nStep 2: Randomly reading 1,000 keys to verify integrity...\n")
	readStartTime := time.Now()
	errors := 0
	crcErrors := 0

	for i := 0; i < 1000; i++ {
		randomIndex := rand.Intn(totalKeys)
		key := bytestring.From(fmt.Sprintf("key_%d", randomIndex))
		expectedValue := fmt.Sprintf("value_%d", randomIndex)

		value, err := kv.Get(key)
		if err != nil {
			errors++
			if errors <= 10 {
				fmt.Printf("  ERROR: Failed to get %s: %v\n", key.String(), err)
				if strings.Contains(err.Error(), "crc") {
					crcErrors++
					fmt.Printf("    CRC MISMATCH - offset calculation may be wrong!\n")
				}
			}
			continue
		}

		if value.String() != expectedValue {
			errors++
			if errors <= 10 {
				fmt.Printf("  ERROR: Value mismatch for %s\n", key.String())
				fmt.Printf("    Expected: '%s'\n", expectedValue)
				fmt.Printf("    Got:      '%s'\n", value.String())
			}
		}
	}

	readTime := time.Since(readStartTime)
	fmt.Printf("\n  Read completed in %v\n", readTime)
	fmt.Printf("  Read rate: %.2f keys/second\n", 1000.0/readTime.Seconds())

	fmt.Println("\n" + strings.Repeat("-", 60))
	fmt.Printf("Errors: %d\n", errors)
	if crcErrors > 0 {
		fmt.Printf("CRC Mismatches: %d\n", crcErrors)
	}

	if errors > 0 {
		fmt.Printf("\nTEST FAILED: %d errors occurred\n", errors)
		os.Exit(1)
	}

	fmt.Println("\nTEST PASSED: All 1,000 random reads returned correct values")
}

// Test 4: Merge Test
func testMerge(cfg *config.Config) {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 4: Merge Test")
	fmt.Println("=" + strings.Repeat("=", 60))

	kv := openEngine(cfg)
	defer kv.Close()

	totalKeys := 10000
	fmt.Printf("Step 1: Writing %d keys twice each, to force rotation...\n", totalKeys)
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < totalKeys; i++ {
			key := bytestring.From(fmt.Sprintf("key_%d", i))
			value := bytestring.From(fmt.Sprintf("value_%d_pass_%d", i, pass))
			if err := kv.Put(key, value); err != nil {
				log.Fatalf("Failed to put key_%d: %v", i, err)
			}
		}
	}

	fmt.Println("Step 2: Merging sealed files...")
	if err := kv.Merge(); err != nil {
		log.Fatalf("Failed to merge: %v", err)
	}

	fmt.Println("Step 3: Verifying latest values survive merge...")
	errors := 0
	for i := 0; i < totalKeys; i += 97 {
		key := bytestring.From(fmt.Sprintf("key_%d", i))
		expected := fmt.Sprintf("value_%d_pass_1", i)
		value, err := kv.Get(key)
		if err != nil || value.String() != expected {
			errors++
			if errors <= 10 {
				fmt.Printf("  ERROR: key_%d got (%v, %q), want %q\n", i, err, value.String(), expected)
			}
		}
	}

	if errors > 0 {
		fmt.Printf("\nTEST FAILED: %d errors occurred\n", errors)
		os.Exit(1)
	}

	fmt.Println("\nTEST PASSED: Merge preserved the latest value for every sampled key")
}
