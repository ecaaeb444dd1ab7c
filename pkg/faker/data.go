// Copyright 2025 Mockd LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package faker

// =============================================================================
// Person
// =============================================================================

var firstNames = []string{
	"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda",
	"William", "Elizabeth", "David", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Charles", "Karen", "Daniel", "Nancy", "Matthew", "Lisa",
	"Anthony", "Betty", "Mark", "Sandra", "Steven", "Ashley", "Paul", "Emily",
	"Andrew", "Donna", "Joshua", "Michelle", "Kenneth", "Carol", "Kevin", "Amanda",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas",
	"Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson", "White",
	"Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson", "Walker", "Young",
}

var namePrefixes = []string{"Mr.", "Mrs.", "Ms.", "Miss", "Dr."}

var sexes = []string{"female", "male"}

var jobLevels = []string{
	"Senior", "Junior", "Lead", "Principal", "Staff", "Chief", "Associate",
}

var jobFields = []string{
	"Software", "Data", "Product", "Marketing", "Sales",
	"Operations", "Security", "Infrastructure", "Quality", "Research",
}

var jobRoles = []string{
	"Engineer", "Analyst", "Manager", "Designer", "Architect",
	"Consultant", "Developer", "Specialist", "Coordinator", "Strategist",
}

// =============================================================================
// Internet
// =============================================================================

var freeEmailDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "proton.me"}

var domainSuffixes = []string{"com", "net", "org", "io", "biz", "info", "dev"}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
}

// =============================================================================
// Location
// =============================================================================

var cities = []string{
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Seattle", "Denver", "Boston",
	"London", "Paris", "Berlin", "Madrid", "Rome", "Amsterdam", "Lisbon", "Dublin",
	"Tokyo", "Sydney", "Toronto", "Montreal",
}

type country struct {
	name string
	code string
}

var countries = []country{
	{"United States", "US"}, {"United Kingdom", "GB"}, {"France", "FR"}, {"Germany", "DE"},
	{"Spain", "ES"}, {"Italy", "IT"}, {"Netherlands", "NL"}, {"Portugal", "PT"},
	{"Ireland", "IE"}, {"Japan", "JP"}, {"Australia", "AU"}, {"Canada", "CA"},
	{"Brazil", "BR"}, {"India", "IN"}, {"Sweden", "SE"}, {"Norway", "NO"},
}

var states = []string{
	"California", "Texas", "Florida", "New York", "Illinois", "Washington",
	"Colorado", "Massachusetts", "Oregon", "Arizona",
}

var streetNames = []string{
	"Main", "Oak", "Elm", "Park", "Cedar", "Maple", "Pine", "Lake", "Hill", "Washington",
}

var streetSuffixes = []string{"Street", "Avenue", "Road", "Lane", "Drive", "Boulevard", "Way", "Court"}

var timeZones = []string{
	"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles",
	"Europe/London", "Europe/Paris", "Europe/Berlin", "Asia/Tokyo", "Australia/Sydney",
}

// =============================================================================
// Company & commerce
// =============================================================================

var companySuffixes = []string{"Inc", "LLC", "Group", "and Sons", "Ltd", "Corp"}

var catchPhraseAdjectives = []string{
	"Adaptive", "Balanced", "Centralized", "Customizable", "Distributed",
	"Ergonomic", "Integrated", "Multi-layered", "Proactive", "Robust",
}

var catchPhraseNouns = []string{
	"architecture", "framework", "hierarchy", "infrastructure", "interface",
	"middleware", "paradigm", "protocol", "solution", "toolset",
}

var productAdjectives = []string{
	"Rustic", "Elegant", "Handcrafted", "Refined", "Sleek",
	"Gorgeous", "Practical", "Modern", "Vintage", "Premium",
	"Luxurious", "Compact", "Ergonomic", "Lightweight", "Durable",
}

var productMaterials = []string{
	"Steel", "Wooden", "Granite", "Rubber", "Cotton",
	"Silk", "Leather", "Bamboo", "Bronze", "Copper",
	"Ceramic", "Plastic", "Glass", "Marble", "Titanium",
}

var productNouns = []string{
	"Chair", "Table", "Lamp", "Keyboard", "Mouse",
	"Backpack", "Watch", "Wallet", "Headphones", "Speaker",
	"Notebook", "Pen", "Mug", "Bottle", "Gloves",
}

var departments = []string{
	"Books", "Electronics", "Garden", "Grocery", "Health", "Home", "Music", "Sports", "Toys",
}

var humanColors = []string{
	"crimson", "azure", "emerald", "ivory", "coral",
	"indigo", "amber", "jade", "scarlet", "turquoise",
	"lavender", "maroon", "teal", "orchid", "cyan",
}

// =============================================================================
// Finance
// =============================================================================

var currencyCodes = []string{
	"USD", "EUR", "GBP", "JPY", "AUD", "CAD", "CHF", "CNY",
	"SEK", "NZD", "MXN", "SGD", "HKD", "NOK", "KRW", "TRY",
	"INR", "BRL", "ZAR",
}

type ibanPrefix struct {
	country    string
	length     int
	bankPrefix string
}

var ibanPrefixes = []ibanPrefix{
	{"GB", 22, "WEST"},
	{"DE", 22, "DEUT"},
	{"FR", 27, "BNPA"},
	{"ES", 24, "BBVA"},
	{"IT", 27, "UCRI"},
	{"NL", 18, "ABNA"},
}

// =============================================================================
// Text
// =============================================================================

var loremWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit",
	"sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore", "et", "dolore",
	"magna", "aliqua", "enim", "ad", "minim", "veniam", "quis", "nostrud",
	"exercitation", "ullamco", "laboris", "nisi", "aliquip", "ex", "ea", "commodo",
	"consequat", "duis", "aute", "irure", "in", "reprehenderit", "voluptate",
	"velit", "esse", "cillum", "fugiat", "nulla", "pariatur", "excepteur", "sint",
	"occaecat", "cupidatat", "non", "proident", "sunt", "culpa", "qui", "officia",
	"deserunt", "mollit", "anim", "id", "est", "laborum",
}

var adjectives = []string{
	"brave", "calm", "eager", "fancy", "gentle", "happy", "jolly", "kind", "lively", "proud",
}

var nouns = []string{
	"river", "mountain", "forest", "ocean", "island", "valley", "desert", "meadow", "canyon", "harbor",
}

var verbs = []string{
	"build", "create", "deliver", "explore", "gather", "imagine", "launch", "measure", "navigate", "organize",
}

// =============================================================================
// Misc
// =============================================================================

var dogBreeds = []string{"Beagle", "Boxer", "Bulldog", "Dachshund", "Labrador Retriever", "Poodle", "Rottweiler"}

var catBreeds = []string{"Abyssinian", "Bengal", "Maine Coon", "Persian", "Ragdoll", "Siamese", "Sphynx"}

var animalTypes = []string{"dog", "cat", "snake", "bear", "lion", "cetacean", "insect", "crocodilia", "cow", "bird", "fish", "rabbit", "horse"}

var vehicleManufacturers = []string{"Toyota", "Ford", "Volkswagen", "Honda", "Tesla", "BMW", "Renault", "Kia"}

var vehicleModels = []string{"Corolla", "Focus", "Golf", "Civic", "Model 3", "X5", "Clio", "Sportage"}

var mimeTypes = []string{
	"application/json", "application/xml", "application/pdf",
	"application/zip", "application/gzip", "application/octet-stream",
	"text/html", "text/plain", "text/css", "text/csv",
	"image/png", "image/jpeg", "image/gif", "image/svg+xml", "image/webp",
	"audio/mpeg", "audio/wav", "video/mp4", "video/webm",
}

var fileExtensions = []string{
	"pdf", "jpg", "png", "gif", "doc", "docx",
	"xls", "xlsx", "csv", "txt", "html", "css",
	"js", "json", "xml", "zip", "tar", "gz",
	"mp3", "mp4", "wav", "mov", "svg", "md", "yaml", "log",
}

var databaseColumns = []string{"id", "title", "name", "email", "phone", "token", "group", "category", "password", "comment", "avatar", "status", "createdAt", "updatedAt"}

var databaseTypes = []string{"int", "varchar", "text", "date", "datetime", "timestamp", "boolean", "json", "uuid", "decimal"}

const (
	alphaLower   = "abcdefghijklmnopqrstuvwxyz"
	alphaUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	hexDigits    = "0123456789abcdef"
	nanoidChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	alphanumeric = alphaLower + digits
)
