package flow

import (
	"fmt"
	"strings"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

var (
	onboardingWelcome = bold("👋 Welcome to CommerceBridge!") + "\n\n" +
		code("I'm your AI shopping assistant! Here's what I can help you with:") + "\n\n" +
		"What would you like to do?\n\n" +
		bold("1️⃣ Customer") + " - Shop for products\n" +
		bold("2️⃣ Seller") + " - Sell your products\n" +
		bold("3️⃣ FAQs") + " - Common questions & answers\n" +
		bold("4️⃣ Contact Support") + " - Get help from our team\n"

	customerMenu = bold("🛍️ Customer Menu") + "\n\n" +
		"What would you like to do?\n\n" +
		bold("1️⃣ Browse Products") + " - See what's available\n" +
		bold("2️⃣ Search Products") + " - Find specific items\n" +
		bold("3️⃣ View Cart") + " - Check your cart\n" +
		bold("4️⃣ My Orders") + " - Track your orders\n" +
		bold("5️⃣ Help") + " - Get support\n\n" +
		italic("Type the number or describe what you need!")

	sellerMenu = bold("🏪 Seller Menu") + "\n\n" +
		"What would you like to do?\n\n" +
		bold("1️⃣ Add Product") + " - Upload new items\n" +
		bold("2️⃣ My Products") + " - Manage inventory\n" +
		bold("3️⃣ View Orders") + " - Handle customer orders\n" +
		bold("4️⃣ Sales Report") + " - Check your performance\n" +
		bold("5️⃣ Help") + " - Get support\n\n" +
		italic("Type the number or describe what you need!")

	msgPickedCustomer = "Great! To shop as a customer, you'll need to create an account.\n\nType *create account* or *signup* to get your registration link."
	msgPickedSeller   = "Awesome! To sell on CommerceBridge, you'll need to create a seller account.\n\nType *create account* or *signup* to get your registration link."

	msgFAQ = bold("❓ Frequently Asked Questions (FAQs)") + "\n\n" +
		bold("About CommerceBridge:") + "\nCommerceBridge helps small businesses like yours sell online easily, right inside WhatsApp! We provide digital storefronts, automated orders, and easy payment options to streamline your sales.\n\n" +
		bold("1. How do I create an account?") + "\n- Just type " + italic("create account") + " or " + italic("signup") + " and follow the link!\n\n" +
		bold("2. Is CommerceBridge free to use?") + "\n- Yes, creating an account and browsing is free.\n\n" +
		bold("3. How do I contact support?") + "\n- Reply with " + italic("4") + " or " + italic("Contact Support") + " at any time.\n\n" +
		italic(`Type "back" to return to the main menu.`)

	msgNeedAccount = bold("You'll need to create an account before using this feature.") + "\n\n" +
		italic("Type *create account* to get started.")

	msgError = bold("❌ Something went wrong") + "\n\n" +
		italic(`I encountered an error processing your request. Please try again or type "help" for support.`)

	msgDidNotUnderstand = bold("I didn't understand.") + " Please choose from the menu:\n\n"

	msgSearchPrompt = bold("🔍 Product Search") + "\n\n" +
		italic("What are you looking for? Please describe the product you want to find.") +
		"\n\nExamples:\n• \"red shoes\"\n• \"laptop under $500\"\n• \"organic vegetables\""

	msgCartEmpty = bold("🛒 Your Cart is Empty") + "\n\n" +
		italic("Add some products to get started!") + "\n\n" +
		italic(`Type "back" to return to menu.`)

	msgCartCleared = bold("🗑️ Cart Cleared") + "\n\n" +
		italic("All items have been removed from your cart.") + "\n\n" +
		italic(`Type "back" to return to menu.`)

	msgInvalidRemove = bold("❌ Invalid Remove Command") + "\n\n" +
		italic(`Please use the format: "remove [item number]"`) + "\n\n" +
		italic(`Example: "remove 1" to remove the first item`)

	msgNoOrders = bold("📋 No Orders Yet") + "\n\n" +
		italic("You haven't placed any orders yet.") + "\n\n" +
		italic(`Type "back" to return to menu.`)

	msgOrderHistoryError = bold("❌ Unable to fetch order history") + " due to a server error."

	msgCheckoutError = bold("❌ Checkout Failed") + "\n\n" +
		italic("We couldn't create your order right now. Your cart is unchanged, please try again shortly.")

	msgAddProduct = bold("📦 Add New Product") + "\n\n" +
		italic("Please send at least 4 photos of your product to continue.") +
		"\n\nAfter that, I'll ask for:\n• Product name\n• Price\n• Description"

	msgProductDetailsPrompt = bold("📝 Product details") + "\n\n" +
		"Send the product name, price and a short description in one message.\n\n" +
		italic("Example: Red sneakers, 45, breathable running shoes for everyday wear")

	msgProductParseError = bold("❌ I couldn't read those product details.") + "\n\n" +
		italic("Please include a name and a price, for example: Red sneakers, 45, breathable running shoes")

	msgProductUploadError = bold("❌ Product upload failed.") + "\n\n" +
		italic("Our image service is not responding. Please resend the product details to try again.")

	msgUploadCancelled = bold("🗑️ Product upload cancelled.") + "\n\n"

	msgSellerProducts = bold("🏪 Your Products") + "\n\nYou have 0 products in your catalog.\n\n" +
		italic(`Type "add product" to upload your first item or "back" to return to menu.`)

	msgSellerOrders = bold("📋 Customer Orders") + "\n\nYou have 0 pending orders.\n\n" +
		italic(`Type "back" to return to menu.`)

	msgSalesReport = bold("📊 Sales Report") + "\n\n" +
		bold("Total Sales:") + " " + monospace("$0") + "\n" +
		bold("Total Orders:") + " 0\n" +
		bold("This Month:") + " " + monospace("$0") + "\n\n" +
		italic(`Type "back" to return to menu.`)

	msgSupportError = bold("❌ Support Error") + "\n\n" +
		italic("I'm having trouble processing your question right now. Please try asking again or contact our human support team.") + "\n\n" +
		italic(`Type "back" to return to the main menu.`)

	msgEscalatedAck = bold("📨 Message forwarded") + "\n\n" +
		italic("Our support team has your message and will reply here shortly.") + "\n\n" +
		italic(`Type "back" to return to the main menu.`)
)

func supportIntro(title string) string {
	return bold(title) + "\n\n" +
		italic("I'm here to help! Please ask your question and I'll do my best to assist you.") + "\n\n" +
		italic("For urgent issues, I'll automatically escalate to our human support team.") + "\n\n" +
		italic(`Type "back" to return to the main menu.`)
}

func escalationMessage(email, phone string) string {
	return bold("🚨 Escalating to Human Support") + "\n\n" +
		italic("I've identified this as an urgent issue that requires human assistance.") + "\n\n" +
		italic("Our support team will contact you shortly. In the meantime, please provide any additional details about your issue.") + "\n\n" +
		italic("For immediate assistance, you can also:") + "\n" +
		"• Email: " + email + "\n" +
		"• Call: " + phone + "\n\n" +
		italic(`Type "back" to return to the main menu.`)
}

func wrapAIAnswer(answer string) string {
	return bold("🤖 AI Support Response") + "\n\n" + answer + "\n\n" +
		italic(`Is there anything else I can help you with? Type "back" to return to the main menu.`)
}

func registrationLink(link string) string {
	return bold("🔗 Create Your Account") + "\n\nClick the link below to create your account:\n" +
		monospace(link) + "\n\n" + italic("Once done, return here to continue!")
}

func productCatalog() string {
	var b strings.Builder
	b.WriteString(bold("🛍️ Product Catalog") + "\n\n" + italic("Here are our featured products:") + "\n")
	for _, p := range catalog {
		fmt.Fprintf(&b, "\n%s. %s - %s", p.ID, bold(p.Name), monospace(formatPrice(p.Price)))
	}
	b.WriteString("\n\n" + italic(`Type the product number to add to cart, "view cart" to see your cart, or "back" to return to menu.`))
	return b.String()
}

func addedToCart(name string) string {
	return bold("✅ "+name+" added to your cart!") + "\n\n" +
		italic(`Type "view cart" to see your cart, or another product number to add more.`)
}

func cartLines(cart []models.CartItem) string {
	var b strings.Builder
	for i, item := range cart {
		fmt.Fprintf(&b, "%d. %s x%d - %s\n", i+1, bold(item.Name), item.Quantity, monospace(formatPrice(item.Subtotal())))
	}
	fmt.Fprintf(&b, "\n%s", bold("💰 Total: "+formatPrice(models.CartTotal(cart))))
	return b.String()
}

func cartSummary(cart []models.CartItem) string {
	if len(cart) == 0 {
		return msgCartEmpty
	}
	return bold("🛒 Your Cart") + "\n\n" + cartLines(cart) + "\n\n" +
		italic("Commands:") + "\n" +
		italic(`• "checkout" - Start payment`) + "\n" +
		italic(`• "remove 1" - Remove item #1`) + "\n" +
		italic(`• "clear cart" - Remove all items`) + "\n" +
		italic(`• "back" - Return to menu`)
}

func checkoutSummary(cart []models.CartItem) string {
	return bold("💳 Checkout Summary") + "\n\n" + cartLines(cart) + "\n\n" +
		italic("Type *confirm* to proceed with payment or *cancel* to go back.")
}

func checkoutLink(total float64, link string) string {
	return bold("💳 Checkout") + "\n\nYour total is " + bold(formatPrice(total)) + ".\n\n" +
		italic("Click the link below to complete your payment:") + "\n" + monospace(link) + "\n\n" +
		italic("Once payment is confirmed, you'll receive a digital receipt!")
}

func itemRemoved(name string) string {
	return bold("🗑️ Item Removed") + "\n\n" + bold(name) + " has been removed from your cart.\n\n" +
		italic(`Type "view cart" to see your updated cart or "back" to return to menu.`)
}

func invalidItemNumber(count int) string {
	return bold("❌ Invalid Item Number") + "\n\n" +
		italic(fmt.Sprintf("Please select a number between 1 and %d", count))
}

func searchResults(query string) string {
	return bold(fmt.Sprintf("🔍 Search Results for %q", query)) + "\n\n" +
		"I found some products matching your search. This feature is coming soon!\n\n" +
		italic(`Type "back" to return to menu.`)
}

func orderHistory(orders []models.Order) string {
	var b strings.Builder
	b.WriteString(bold("📋 Your Order History") + "\n\n")
	for i, o := range orders {
		fmt.Fprintf(&b, "%d. %s - Status: %s - Total: %s\n", i+1, bold("Order #"+o.ID), italic(o.StatusLabel()), monospace(formatPrice(o.Total)))
	}
	b.WriteString("\n" + italic(`Type "back" to return to menu.`))
	return b.String()
}

func imageReceived(count int) string {
	switch {
	case count < session.MinProductImages:
		return fmt.Sprintf("%s\nYou have sent %d image(s). Please send %d more.", bold("🖼️ Image received!"), count, session.MinProductImages-count)
	case count == session.MinProductImages:
		return bold("✅ Minimum images received!") + "\n" + `Type "done" to continue, or send more images.`
	default:
		return fmt.Sprintf("%s\nYou have sent %d images. Type \"done\" if you are finished, or send more images.", bold("🖼️ Image received!"), count)
	}
}

func notEnoughImages(count int) string {
	return bold(fmt.Sprintf("⚠️ You have only sent %d image(s).", count)) + "\n" +
		fmt.Sprintf("Please send at least %d images to continue.", session.MinProductImages)
}

func uploadResult(res models.ProductUploadResult) string {
	var b strings.Builder
	b.WriteString(bold("📦 Product Upload Result") + "\n\n")
	fmt.Fprintf(&b, "Images added: %d\n", res.Added)
	fmt.Fprintf(&b, "Duplicates: %d\n", res.Duplicates)
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "Errors: %s\n", strings.Join(res.Errors, ", "))
	}
	b.WriteString("\n" + italic(`Type "back" to return to seller menu.`))
	return b.String()
}
